package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"profitdash/internal/analytics"
	"profitdash/internal/chatbot"
	"profitdash/internal/core"
	"profitdash/internal/ingest"
	"profitdash/internal/integrations"
	"profitdash/internal/log"
	"profitdash/internal/products"
)

type dashboardData struct {
	HasProducts     bool
	Snapshot        core.Snapshot
	Report          analytics.Report
	MaxUploadMB     int64
	RequiredColumns []string
}

type profitData struct {
	HasProducts bool
	Report      analytics.Report
	ProfitBars  []chartItem
	Split       []chartItem
}

type chatData struct {
	Messages  []chatbot.Message
	MaxLength int
}

type integrationData struct {
	Status integrations.Status
	Title  string
	Fields []string
	Error  string
}

type productData struct {
	Product core.Product
	Pie     []chartItem
	Bars    []chartItem
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("tab")
	if !knownTab(name) {
		name = tabDashboard
	}
	data, err := s.tabData(r, name)
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard_page", s.page(r, "Dashboard", name, data))
}

// handleTab renders one tab for htmx to swap into the page.
func (s *Server) handleTab(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tab")
	if !knownTab(name) {
		s.fail(w, r, http.StatusNotFound, "Unknown tab")
		return
	}
	data, err := s.tabData(r, name)
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "tab_content", page{Tab: name, Data: data})
}

func (s *Server) handleProductPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.products.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if errors.Is(err, products.ErrNotFound) {
		s.fail(w, r, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}

	bd := analytics.Breakdown(p)
	title := p.Name
	if title == "" {
		title = "Product"
	}
	s.render(w, r, http.StatusOK, "product_page", s.page(r, title, "", productData{
		Product: p,
		Pie:     chartItems(bd.Pie),
		Bars:    chartItems(bd.Bar),
	}))
}

func (s *Server) tabData(r *http.Request, name string) (any, error) {
	user := currentUser(r)
	switch name {
	case tabDashboard, tabProfit:
		snap, err := s.products.Snapshot(r.Context(), user.ID)
		if err != nil {
			return nil, fmt.Errorf("load products: %w", err)
		}
		if name == tabDashboard {
			return s.dashboardData(snap), nil
		}
		return s.profitData(snap), nil
	case tabChatbot:
		return chatData{Messages: s.bot.History(user.ID), MaxLength: chatbot.MaxMessageLength}, nil
	default:
		provider, err := integrations.ParseProvider(name)
		if err != nil {
			return nil, err
		}
		return integrationView(s.integrations.Status(user.ID, provider), ""), nil
	}
}

func (s *Server) dashboardData(snap core.Snapshot) dashboardData {
	d := dashboardData{
		HasProducts:     !snap.Empty(),
		Snapshot:        snap,
		MaxUploadMB:     s.maxUploadMB(),
		RequiredColumns: ingest.RequiredColumns(),
	}
	if d.HasProducts {
		d.Report = s.reporter.Report(snap)
	}
	return d
}

func (s *Server) profitData(snap core.Snapshot) profitData {
	if snap.Empty() {
		return profitData{}
	}
	rep := s.reporter.Report(snap)
	return profitData{
		HasProducts: true,
		Report:      rep,
		ProfitBars:  profitBars(rep.ProfitSeries),
		Split:       chartItems(rep.ProfitVsExpenses),
	}
}

func integrationView(st integrations.Status, errMsg string) integrationData {
	return integrationData{
		Status: st,
		Title:  st.Provider.Title(),
		Fields: st.Provider.Fields(),
		Error:  errMsg,
	}
}

func (s *Server) loadFailed(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load dashboard data",
		log.FieldError, err,
		log.FieldOperation, log.OpRead)
	s.fail(w, r, http.StatusInternalServerError, "Could not load your data. Please try again.")
}
