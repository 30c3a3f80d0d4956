// Package integrations holds the Amazon and Shopify store connections. They
// are mocks: credentials are checked for shape, never stored or sent, and
// the metrics are fixed figures.
package integrations

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"profitdash/internal/log"
)

type Provider string

const (
	Amazon  Provider = "amazon"
	Shopify Provider = "shopify"
)

var ErrUnknownProvider = errors.New("unknown integration provider")

// Providers lists the integrations in display order.
func Providers() []Provider {
	return []Provider{Amazon, Shopify}
}

// ParseProvider maps a path segment to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case Amazon, Shopify:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// Title is the provider's display name.
func (p Provider) Title() string {
	switch p {
	case Amazon:
		return "Amazon Seller"
	case Shopify:
		return "Shopify"
	}
	return string(p)
}

// Fields returns the credential form fields the provider asks for.
func (p Provider) Fields() []string {
	switch p {
	case Amazon:
		return []string{"api_key", "secret_key"}
	case Shopify:
		return []string{"shop_domain", "access_token"}
	}
	return nil
}

type amazonCredentials struct {
	APIKey    string `validate:"required,max=256"`
	SecretKey string `validate:"required,max=256"`
}

type shopifyCredentials struct {
	ShopDomain  string `validate:"required,max=255"`
	AccessToken string `validate:"required,max=256"`
}

// CredentialsError lists the form fields that failed validation.
type CredentialsError struct {
	Provider Provider
	Fields   []string
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s: please fill in %s", e.Provider.Title(), strings.Join(e.Fields, ", "))
}

// Metrics are the mock store figures shown on a connected tab.
type Metrics struct {
	TotalOrders       int     `json:"totalOrders"`
	Revenue           float64 `json:"revenue"`
	AverageOrderValue float64 `json:"averageOrderValue"`
	// ConversionRate is reported by Amazon only.
	ConversionRate float64 `json:"conversionRate,omitempty"`
	// Customers is reported by Shopify only.
	Customers     int     `json:"customers,omitempty"`
	TopProduct    string  `json:"topProduct"`
	MonthlyGrowth float64 `json:"monthlyGrowth"`
}

var mockMetrics = map[Provider]Metrics{
	Amazon: {
		TotalOrders:       1247,
		Revenue:           45678.90,
		AverageOrderValue: 36.65,
		ConversionRate:    3.2,
		TopProduct:        "Wireless Headphones",
		MonthlyGrowth:     12.5,
	},
	Shopify: {
		TotalOrders:       892,
		Revenue:           32456.78,
		AverageOrderValue: 36.38,
		Customers:         1247,
		TopProduct:        "Organic Coffee Beans",
		MonthlyGrowth:     15.3,
	},
}

// Status is what an integration tab renders.
type Status struct {
	Provider  Provider
	Connected bool
	// Metrics is set only when Connected.
	Metrics *Metrics
}

type key struct {
	user     string
	provider Provider
}

// Registry tracks the per-user connection toggle of each provider.
type Registry struct {
	mu        sync.RWMutex
	connected map[key]bool
	validate  *validator.Validate
	logger    *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Discard()
	}
	return &Registry{
		connected: make(map[key]bool),
		validate:  validator.New(),
		logger:    logger.WithComponent(log.ComponentIntegration),
	}
}

// Connect checks the credentials for provider and marks it connected.
func (r *Registry) Connect(userID string, provider Provider, creds map[string]string) (Status, error) {
	if err := r.check(provider, creds); err != nil {
		return Status{}, err
	}

	r.mu.Lock()
	r.connected[key{userID, provider}] = true
	r.mu.Unlock()

	r.logger.Info("Integration connected",
		log.FieldUserID, userID,
		"provider", provider)
	return r.Status(userID, provider), nil
}

// Disconnect resets the toggle; disconnecting twice is fine.
func (r *Registry) Disconnect(userID string, provider Provider) Status {
	r.mu.Lock()
	delete(r.connected, key{userID, provider})
	r.mu.Unlock()

	r.logger.Info("Integration disconnected",
		log.FieldUserID, userID,
		"provider", provider)
	return Status{Provider: provider}
}

func (r *Registry) Status(userID string, provider Provider) Status {
	r.mu.RLock()
	on := r.connected[key{userID, provider}]
	r.mu.RUnlock()

	st := Status{Provider: provider, Connected: on}
	if on {
		m := mockMetrics[provider]
		st.Metrics = &m
	}
	return st
}

// Forget drops every toggle of the user, as on sign-out.
func (r *Registry) Forget(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.connected {
		if k.user == userID {
			delete(r.connected, k)
		}
	}
}

func (r *Registry) check(provider Provider, creds map[string]string) error {
	get := func(name string) string { return strings.TrimSpace(creds[name]) }

	var form any
	switch provider {
	case Amazon:
		form = amazonCredentials{APIKey: get("api_key"), SecretKey: get("secret_key")}
	case Shopify:
		form = shopifyCredentials{ShopDomain: get("shop_domain"), AccessToken: get("access_token")}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	err := r.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := provider.Fields()
	bad := &CredentialsError{Provider: provider}
	for _, fe := range verrs {
		bad.Fields = append(bad.Fields, fieldName(fields, fe.Field()))
	}
	return bad
}

// fieldName maps a struct field back to its form name.
func fieldName(formFields []string, structField string) string {
	want := strings.ToLower(structField)
	for _, f := range formFields {
		if strings.ReplaceAll(f, "_", "") == want {
			return f
		}
	}
	return structField
}
