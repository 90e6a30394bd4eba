package moysklad

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.MoySkladConfig{
		BaseURL:       server.URL,
		WebBaseURL:    "https://online.moysklad.ru",
		Token:         "test-token",
		Timeout:       5 * time.Second,
		CreateTimeout: 10 * time.Second,
	}, zap.NewNop())
	return client, server
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_RequestHeaders(t *testing.T) {
	var gotAuth, gotContentType string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))

	require.NoError(t, client.VerifyCredentials(context.Background()))
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "application/json;charset=utf-8", gotContentType)
}

func TestClient_ErrorWrapping(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"error":"auth"}]}`, http.StatusUnauthorized)
	}))

	err := client.VerifyCredentials(context.Background())
	assert.ErrorIs(t, err, document.ErrExternalService)

	unreachable := NewClient(config.MoySkladConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	}, zap.NewNop())
	err = unreachable.VerifyCredentials(context.Background())
	assert.ErrorIs(t, err, document.ErrTransport)
}

func TestClient_FindAnyService(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entity/service", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		writeJSON(t, w, map[string]any{"rows": []map[string]any{
			{"id": "svc-1", "name": "Доставка", "meta": map[string]any{"href": "href:svc-1"}},
		}})
	}))

	svc, err := client.FindAnyService(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Доставка", svc.Name)
	assert.Equal(t, "href:svc-1", svc.Meta.Href)

	empty, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"rows": []map[string]any{}})
	}))
	_, err = empty.FindAnyService(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_FindCounterpartyByINN(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entity/counterparty", r.URL.Path)
		if r.URL.Query().Get("filter") == "inn=7810000000" {
			writeJSON(t, w, map[string]any{"rows": []map[string]any{
				{"id": "cp-1", "name": "ООО Клиент", "inn": "7810000000"},
			}})
			return
		}
		writeJSON(t, w, map[string]any{"rows": []map[string]any{}})
	}))

	found, err := client.FindCounterpartyByINN(context.Background(), "7810000000")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", found.ID)

	_, err = client.FindCounterpartyByINN(context.Background(), "0000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_CreateCounterparty_CompanyType(t *testing.T) {
	var payloads []map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		payloads = append(payloads, payload)
		writeJSON(t, w, map[string]any{"id": "new", "name": payload["name"]})
	}))

	_, err := client.CreateCounterparty(context.Background(), document.Organization{
		Name: "ООО Клиент", INN: "7810000000", KPP: "781001001",
	})
	require.NoError(t, err)

	_, err = client.CreateCounterparty(context.Background(), document.Organization{
		Name: "ИП Иванов", INN: "781000000012", KPP: "ignored",
	})
	require.NoError(t, err)

	require.Len(t, payloads, 2)
	assert.Equal(t, "legal", payloads[0]["companyType"])
	assert.Equal(t, "781001001", payloads[0]["kpp"])

	// A sole proprietor has no sub-division code even when one was parsed.
	assert.Equal(t, "individual", payloads[1]["companyType"])
	assert.NotContains(t, payloads[1], "kpp")
}

func TestClient_FindInvoiceOutByNumber_PatternFallthrough(t *testing.T) {
	var filters []string
	mux := http.NewServeMux()
	client, server := newTestClient(t, mux)

	mux.HandleFunc("/entity/invoiceout", func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		filters = append(filters, filter)
		if filter == "name~239" {
			writeJSON(t, w, map[string]any{"rows": []map[string]any{
				{"id": "inv-1", "name": "Счет 239", "meta": map[string]any{
					"href": server.URL + "/entity/invoiceout/inv-1",
				}},
			}})
			return
		}
		writeJSON(t, w, map[string]any{"rows": []map[string]any{}})
	})
	mux.HandleFunc("/entity/invoiceout/inv-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"id":   "inv-1",
			"name": "Счет 239",
			"meta": map[string]any{"href": server.URL + "/entity/invoiceout/inv-1"},
			"store": map[string]any{"meta": map[string]any{
				"href": server.URL + "/entity/store/st-1",
			}},
		})
	})

	found, err := client.FindInvoiceOutByNumber(context.Background(), "239")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", found.ID)
	require.NotNil(t, found.Store)

	// Exact name first, partial second; the description filter never runs.
	assert.Equal(t, []string{"name=239", "name~239"}, filters)

	_, err = client.FindInvoiceOutByNumber(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_InvoiceStore(t *testing.T) {
	mux := http.NewServeMux()
	client, server := newTestClient(t, mux)

	storeHref := server.URL + "/entity/store/st-1"
	mux.HandleFunc("/entity/invoiceout/deep", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"id":    "deep",
			"store": map[string]any{"meta": map[string]any{"href": storeHref}},
		})
	})
	mux.HandleFunc("/entity/invoiceout/bare", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": "bare"})
	})

	// Shallow row: the store only appears on the dereferenced entity.
	meta, err := client.InvoiceStore(context.Background(), &InvoiceOut{
		Name: "Счет 239",
		Meta: Meta{Href: server.URL + "/entity/invoiceout/deep"},
	})
	require.NoError(t, err)
	assert.Equal(t, storeHref, meta.Href)

	_, err = client.InvoiceStore(context.Background(), &InvoiceOut{
		Name: "Счет 240",
		Meta: Meta{Href: server.URL + "/entity/invoiceout/bare"},
	})
	assert.ErrorIs(t, err, document.ErrExternalService)
}

func TestClient_InvoicePositionPrices_Shapes(t *testing.T) {
	mux := http.NewServeMux()
	client, server := newTestClient(t, mux)

	mux.HandleFunc("/positions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"rows": []map[string]any{
			{"price": 12050.0, "assortment": map[string]any{
				"name": "Труба", "article": "TUBE-01",
			}},
		}})
	})
	mux.HandleFunc("/assortment/a-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"name": "Профиль", "article": "PROF-60"})
	})

	tests := []struct {
		name      string
		positions string
		want      map[string]int64
	}{
		{
			name: "inline array",
			positions: `[{"price": 5000, "assortment": {"name": "Болт", "article": "B-8"}},
			             {"price": 0, "assortment": {"name": "Бесплатный"}}]`,
			want: map[string]int64{"article:B-8": 5000, "name:Болт": 5000, "name:Бесплатный": 0},
		},
		{
			name:      "rows envelope with shallow assortment",
			positions: fmt.Sprintf(`{"rows": [{"price": 7700, "assortment": {"meta": {"href": %q}}}]}`, server.URL+"/assortment/a-1"),
			want:      map[string]int64{"article:PROF-60": 7700, "name:Профиль": 7700},
		},
		{
			name:      "collection reference",
			positions: fmt.Sprintf(`{"meta": {"href": %q}}`, server.URL+"/positions"),
			want:      map[string]int64{"article:TUBE-01": 12050, "name:Труба": 12050},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices, err := client.InvoicePositionPrices(context.Background(), &InvoiceOut{
				Positions: json.RawMessage(tt.positions),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, prices)
		})
	}
}

func TestClient_CreateDemand_Payload(t *testing.T) {
	var payload map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/entity/demand", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		writeJSON(t, w, map[string]any{"id": "d-1", "name": "О77"})
	}))

	moment := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	created, err := client.CreateDemand(context.Background(), DemandInput{
		Name:         "О77",
		Moment:       moment,
		Organization: Meta{Href: "org-href"},
		Agent:        Meta{Href: "agent-href"},
		Store:        Meta{Href: "store-href"},
		InvoiceOut:   &Meta{Href: "invoice-href"},
		Positions: []Position{
			{Quantity: 10, Price: 12050, Assortment: Ref{Meta: Meta{Href: "p-href"}}, Vat: 20},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "d-1", created.ID)

	assert.Equal(t, "О77", payload["name"])
	assert.Equal(t, "2024-03-15 00:00:00.000", payload["moment"])
	assert.Equal(t, true, payload["vatEnabled"])
	assert.Equal(t, true, payload["vatIncluded"])
	require.Len(t, payload["invoicesOut"], 1)
	require.Len(t, payload["positions"], 1)
}

func TestClient_AccessSummary(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux)

	mux.HandleFunc("/context/employee", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"name": "Оператор", "email": "op@example.com"})
	})
	mux.HandleFunc("/entity/organization", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"rows": []map[string]any{
			{"id": "org-1", "name": "ООО Наша фирма", "inn": "7810000000"},
		}})
	})
	mux.HandleFunc("/entity/factureout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"rows": []map[string]any{}})
	})
	mux.HandleFunc("/entity/counterparty", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"rows": []map[string]any{}})
	})
	mux.HandleFunc("/entity/store", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"rows": []map[string]any{{"id": "st-1"}, {"id": "st-2"}}})
	})
	mux.HandleFunc("/entity/customerorder", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	summary, err := client.AccessSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Оператор", summary.Employee.Name)
	assert.Equal(t, "ООО Наша фирма", summary.Organization.Name)
	assert.True(t, summary.CanCreateInvoices)
	assert.True(t, summary.CanAccessStores)
	assert.Equal(t, 2, summary.Stores)
	assert.False(t, summary.CanAccessCustomerOrders)
}

func TestVatPercent(t *testing.T) {
	assert.Equal(t, 20, VatPercent("20%"))
	assert.Equal(t, 10, VatPercent("10"))
	assert.Equal(t, 18, VatPercent("без НДС"))
	assert.Equal(t, 18, VatPercent(""))
}

func TestKopecks(t *testing.T) {
	assert.Equal(t, int64(12050), Kopecks(decimal.RequireFromString("120.50")))
	assert.Equal(t, int64(100), Kopecks(decimal.NewFromInt(1)))
	// Fractions beyond kopecks truncate.
	assert.Equal(t, int64(12), Kopecks(decimal.RequireFromString("0.129")))
}

func TestClient_DocumentURLs(t *testing.T) {
	client := NewClient(config.MoySkladConfig{
		WebBaseURL: "https://online.moysklad.ru",
	}, zap.NewNop())

	assert.Equal(t, "https://online.moysklad.ru/app/#factureout/edit?id=f-1", client.FactureOutURL("f-1"))
	assert.Equal(t, "https://online.moysklad.ru/app/#demand/edit?id=d-1", client.DemandURL("d-1"))
	assert.Equal(t, "https://online.moysklad.ru/app/#customerorder/edit?id=o-1", client.CustomerOrderURL("o-1"))
	assert.Equal(t, "https://online.moysklad.ru/app/#invoiceout/edit?id=i-1", client.InvoiceOutURL("i-1"))
}
