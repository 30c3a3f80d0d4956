package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"profitdash/internal/analytics"
	"profitdash/internal/core"
	"profitdash/internal/integrations"
	"profitdash/internal/products"
)

// profitChart is the data behind the profit tab's charts.
type profitChart struct {
	Series           []analytics.SeriesPoint `json:"series"`
	ProfitVsExpenses []analytics.Slice       `json:"profitVsExpenses"`
	TopProducts      []core.Product          `json:"topProducts"`
}

type integrationStatus struct {
	Provider  integrations.Provider `json:"provider"`
	Connected bool                  `json:"connected"`
	Metrics   *integrations.Metrics `json:"metrics,omitempty"`
}

func (s *Server) handleAPIProducts(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.apiSnapshot(w, r)
	if !ok {
		return
	}
	if snap.Products == nil {
		snap.Products = []core.Product{}
	}
	s.writeJSON(w, r, http.StatusOK, snap)
}

func (s *Server) handleAPIProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.apiProduct(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.apiSnapshot(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.reporter.Report(snap).Summary)
}

func (s *Server) handleAPIProfitChart(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.apiSnapshot(w, r)
	if !ok {
		return
	}
	rep := s.reporter.Report(snap)
	chart := profitChart{
		Series:           rep.ProfitSeries,
		ProfitVsExpenses: rep.ProfitVsExpenses,
		TopProducts:      rep.TopProducts,
	}
	if chart.Series == nil {
		chart.Series = []analytics.SeriesPoint{}
	}
	if chart.ProfitVsExpenses == nil {
		chart.ProfitVsExpenses = []analytics.Slice{}
	}
	if chart.TopProducts == nil {
		chart.TopProducts = []core.Product{}
	}
	s.writeJSON(w, r, http.StatusOK, chart)
}

func (s *Server) handleAPIBreakdown(w http.ResponseWriter, r *http.Request) {
	p, ok := s.apiProduct(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, analytics.Breakdown(p))
}

func (s *Server) handleAPIIntegration(w http.ResponseWriter, r *http.Request) {
	provider, err := integrations.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		s.fail(w, r, http.StatusNotFound, "Unknown integration")
		return
	}
	s.writeJSON(w, r, http.StatusOK, toIntegrationStatus(s.integrations.Status(currentUser(r).ID, provider)))
}

func toIntegrationStatus(st integrations.Status) integrationStatus {
	return integrationStatus{Provider: st.Provider, Connected: st.Connected, Metrics: st.Metrics}
}

func (s *Server) apiSnapshot(w http.ResponseWriter, r *http.Request) (core.Snapshot, bool) {
	snap, err := s.products.Snapshot(r.Context(), currentUser(r).ID)
	if err != nil {
		s.loadFailed(w, r, err)
		return core.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) apiProduct(w http.ResponseWriter, r *http.Request) (core.Product, bool) {
	p, err := s.products.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if errors.Is(err, products.ErrNotFound) {
		s.fail(w, r, http.StatusNotFound, "Product not found")
		return core.Product{}, false
	}
	if err != nil {
		s.loadFailed(w, r, err)
		return core.Product{}, false
	}
	return p, true
}
