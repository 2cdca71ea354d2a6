package verification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealdesk-desktop/internal/api"
)

type fakeDealBackend struct {
	t *testing.T

	mu           sync.Mutex
	draft        DraftResponse
	lastUpdate   map[string]interface{}
	failSaves    bool
	statusSet    string
	savesStarted int
	saveGate     chan struct{} // when set, PUT /deals blocks until closed

	server *httptest.Server
}

func newFakeDealBackend(t *testing.T) *fakeDealBackend {
	units := 120
	b := &fakeDealBackend{
		t: t,
		draft: DraftResponse{
			ID: "deal-1",
			PropertyDetails: PropertyDetails{
				PropertyName:  "Maple Court",
				City:          "Austin",
				State:         "TX",
				NumberOfUnits: units,
				AskingPrice:   12_500_000,
			},
			RentRoll: []RentRollRow{
				{Unit: "101", UnitType: "1BR", CurrentRent: 1450},
				{Unit: "102", UnitType: "2BR", CurrentRent: 1890},
			},
			T12: []T12Row{
				{LineItem: "Gross Potential Rent", Amount: 2_150_000, Category: "income"},
				{LineItem: "Repairs & Maintenance", Amount: -310_000, Category: "expense"},
			},
			Status: "draft",
			DocumentURLs: DocumentURLs{
				OMFileURL:       "https://storage.example/om?sig=abc",
				RentRollFileURL: "https://storage.example/rr?sig=def",
			},
		},
	}

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/upload/draft/deal-1":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(b.draft)

		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/deals/deal-1":
			b.savesStarted++
			if b.saveGate != nil {
				gate := b.saveGate
				b.mu.Unlock()
				<-gate
				b.mu.Lock()
			}
			if b.failSaves {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			b.lastUpdate = map[string]interface{}{}
			require.NoError(b.t, json.NewDecoder(r.Body).Decode(&b.lastUpdate))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(b.draft)

		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/pipeline/deal-1/status":
			var body map[string]string
			require.NoError(b.t, json.NewDecoder(r.Body).Decode(&body))
			b.statusSet = body["status"]
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/deals":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]DealSummary{
				{ID: "deal-1", PropertyName: "Maple Court", Status: "draft"},
			})

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func newTestVerification(t *testing.T, backend *fakeDealBackend) *Service {
	svc := NewService(nil, nil)
	svc.SetClient(api.NewClient(backend.server.URL, "test-token"))
	return svc
}

func strPtr(s string) *string     { return &s }
func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func TestLoadDraft(t *testing.T) {
	t.Run("Should replace state wholesale and clear dirty", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)

		svc.UpdatePropertyDetails(PropertyDetailsPatch{City: strPtr("Dallas")})
		require.True(t, svc.HasUnsavedChanges())

		state, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		assert.Equal(t, "deal-1", svc.ActiveDealID())
		assert.False(t, state.HasUnsavedChanges)
		assert.False(t, svc.HasUnsavedChanges())
		assert.Equal(t, "Maple Court", state.PropertyDetails.PropertyName)
		assert.Equal(t, "Austin", state.PropertyDetails.City, "stale local edits must not survive a load")
		assert.Len(t, state.RentRoll, 2)
		assert.Len(t, state.T12, 2)
	})

	t.Run("Should fail without a cached draft when the backend is down", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		backend.server.Close()

		_, err := svc.LoadDraft("deal-1")

		require.Error(t, err)
	})
}

func TestUpdatePropertyDetails(t *testing.T) {
	t.Run("Should shallow-merge only the given fields", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		svc.UpdatePropertyDetails(PropertyDetailsPatch{
			City:        strPtr("Dallas"),
			AskingPrice: floatPtr(13_000_000),
		})

		state := svc.State()
		assert.Equal(t, "Dallas", state.PropertyDetails.City)
		assert.Equal(t, 13_000_000.0, state.PropertyDetails.AskingPrice)
		assert.Equal(t, "Maple Court", state.PropertyDetails.PropertyName, "untouched fields keep server values")
		assert.Equal(t, 120, state.PropertyDetails.NumberOfUnits)
		assert.True(t, state.HasUnsavedChanges)
	})

	t.Run("Should let later patches win over earlier ones", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		svc.UpdatePropertyDetails(PropertyDetailsPatch{YearBuilt: intPtr(1987)})
		svc.UpdatePropertyDetails(PropertyDetailsPatch{YearBuilt: intPtr(1992)})

		assert.Equal(t, 1992, svc.State().PropertyDetails.YearBuilt)
	})
}

func TestUpdateRowData(t *testing.T) {
	t.Run("Should set dirty even when the rows are identical", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		state, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)
		require.False(t, state.HasUnsavedChanges)

		// Mutation-triggered, not diff-triggered.
		svc.UpdateRentRollData(state.RentRoll)

		assert.True(t, svc.HasUnsavedChanges())
	})

	t.Run("Should replace the sequence wholesale", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		svc.UpdateT12Data([]T12Row{{LineItem: "Insurance", Amount: -95_000, Category: "expense"}})

		state := svc.State()
		require.Len(t, state.T12, 1)
		assert.Equal(t, "Insurance", state.T12[0].LineItem)
		assert.True(t, svc.HasT12Data())
	})

	t.Run("Should report empty row data through selectors", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)
		require.True(t, svc.HasRentRollData())

		svc.UpdateRentRollData(nil)

		assert.False(t, svc.HasRentRollData())
	})
}

func TestState(t *testing.T) {
	t.Run("Should return a copy that does not leak internal state", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		state := svc.State()
		state.PropertyDetails.City = "Nowhere"
		state.RentRoll[0].Unit = "999"

		fresh := svc.State()
		assert.Equal(t, "Austin", fresh.PropertyDetails.City)
		assert.Equal(t, "101", fresh.RentRoll[0].Unit)
	})
}

func TestPersist(t *testing.T) {
	t.Run("Should send only changed fields and clear dirty", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		svc.UpdatePropertyDetails(PropertyDetailsPatch{City: strPtr("Dallas")})

		require.NoError(t, svc.Persist())

		assert.False(t, svc.HasUnsavedChanges())

		backend.mu.Lock()
		defer backend.mu.Unlock()
		assert.Equal(t, "Dallas", backend.lastUpdate["city"])
		_, sentName := backend.lastUpdate["property_name"]
		assert.False(t, sentName, "unchanged fields must not be sent")
		_, sentRR := backend.lastUpdate["rent_roll"]
		assert.False(t, sentRR, "untouched rent roll must not be sent")
	})

	t.Run("Should include replaced row data", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		svc.UpdateRentRollData([]RentRollRow{{Unit: "201", CurrentRent: 1600}})

		require.NoError(t, svc.Persist())

		backend.mu.Lock()
		defer backend.mu.Unlock()
		rows, ok := backend.lastUpdate["rent_roll"].([]interface{})
		require.True(t, ok)
		assert.Len(t, rows, 1)
	})

	t.Run("Should keep dirty state when the save fails", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		svc.UpdatePropertyDetails(PropertyDetailsPatch{City: strPtr("Dallas")})
		backend.mu.Lock()
		backend.failSaves = true
		backend.mu.Unlock()

		err = svc.Persist()

		require.Error(t, err)
		assert.True(t, svc.HasUnsavedChanges())
		assert.Equal(t, "Dallas", svc.State().PropertyDetails.City, "edits survive a failed save")
	})

	t.Run("Should keep edits made while a save is in flight", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		svc.UpdateT12Data([]T12Row{{LineItem: "Insurance", Amount: -95_000, Category: "expense"}})

		gate := make(chan struct{})
		backend.mu.Lock()
		backend.saveGate = gate
		backend.mu.Unlock()

		done := make(chan error, 1)
		go func() { done <- svc.Persist() }()

		require.Eventually(t, func() bool {
			backend.mu.Lock()
			defer backend.mu.Unlock()
			return backend.savesStarted > 0
		}, time.Second, 5*time.Millisecond, "save never reached the backend")

		// Edit while the PUT is held open; it was not part of the request.
		newRows := []RentRollRow{{Unit: "301", CurrentRent: 2100}}
		svc.UpdateRentRollData(newRows)

		close(gate)
		require.NoError(t, <-done)

		assert.True(t, svc.HasUnsavedChanges(), "an edit landed mid-save and was never persisted")
		state := svc.State()
		require.Len(t, state.RentRoll, 1)
		assert.Equal(t, "301", state.RentRoll[0].Unit)

		// The next save carries what the first one missed.
		backend.mu.Lock()
		backend.saveGate = nil
		backend.mu.Unlock()

		require.NoError(t, svc.Persist())
		assert.False(t, svc.HasUnsavedChanges())

		backend.mu.Lock()
		defer backend.mu.Unlock()
		rows, ok := backend.lastUpdate["rent_roll"].([]interface{})
		require.True(t, ok)
		assert.Len(t, rows, 1)
	})

	t.Run("Should be a no-op when nothing changed", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		require.NoError(t, svc.Persist())

		backend.mu.Lock()
		defer backend.mu.Unlock()
		assert.Nil(t, backend.lastUpdate, "no PUT should be issued for a clean state")
	})

	t.Run("Should require a loaded deal", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)

		svc.UpdatePropertyDetails(PropertyDetailsPatch{City: strPtr("Dallas")})
		err := svc.Persist()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no deal loaded")
	})
}

func TestUpdateDealStatus(t *testing.T) {
	t.Run("Should pass valid statuses through to the backend", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)
		_, err := svc.LoadDraft("deal-1")
		require.NoError(t, err)

		require.NoError(t, svc.UpdateDealStatus("deal-1", "active"))

		backend.mu.Lock()
		defer backend.mu.Unlock()
		assert.Equal(t, "active", backend.statusSet)
	})

	t.Run("Should reject unknown statuses locally", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)

		err := svc.UpdateDealStatus("deal-1", "archived")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid deal status")
	})
}

func TestListDeals(t *testing.T) {
	t.Run("Should return the pipeline listing", func(t *testing.T) {
		backend := newFakeDealBackend(t)
		svc := newTestVerification(t, backend)

		deals, err := svc.ListDeals()

		require.NoError(t, err)
		require.Len(t, deals, 1)
		assert.Equal(t, "Maple Court", deals[0].PropertyName)
	})
}
