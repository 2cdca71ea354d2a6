package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"gorm.io/gorm"

	"dealdesk-desktop/internal/api"
	"dealdesk-desktop/internal/models"
)

// Valid pipeline statuses for a deal
var validDealStatuses = map[string]bool{
	"active": true,
	"draft":  true,
	"dead":   true,
}

// Service holds the editable verification state for the active deal.
// The server draft and the user's local edits are kept apart: the
// draft is what the backend last sent, the edits are what the user
// changed since. Readers see the merge; Persist flushes the edits and
// folds them into the draft. Unsaved-changes detection is therefore
// exact rather than inferred from a shared mutable blob.
type Service struct {
	db     *gorm.DB
	ctx    context.Context
	client *api.Client

	mu          sync.RWMutex
	dealID      string
	serverDraft DraftResponse
	editedProps PropertyDetailsPatch
	editedRR    *[]RentRollRow
	editedT12   *[]T12Row
	dirty       bool

	// editGen counts edit-state changes. Persist snapshots it before the
	// network call and only clears edits if no mutation landed in between.
	editGen uint64

	emit func(event string, payload interface{})
}

// NewService creates a new verification service
func NewService(db *gorm.DB, ctx context.Context) *Service {
	s := &Service{db: db, ctx: ctx}
	if ctx != nil {
		s.emit = func(event string, payload interface{}) {
			runtime.EventsEmit(ctx, event, payload)
		}
	}
	return s
}

// SetClient attaches the authenticated API client
func (s *Service) SetClient(client *api.Client) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

// LoadDraft fetches the deal's draft and replaces the whole state with
// it, discarding local edits and clearing the dirty flag. When the
// backend is unreachable, a previously cached draft is used so the
// verification screens still render.
func (s *Service) LoadDraft(dealID string) (*VerificationState, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return nil, fmt.Errorf("not signed in")
	}

	draft, err := s.fetchDraft(client, dealID)
	if err != nil {
		cached, cacheErr := s.cachedDraft(dealID)
		if cacheErr != nil {
			return nil, err
		}
		log.Printf("Using cached draft for deal %s: %v", dealID, err)
		draft = cached
	} else {
		s.cacheDraft(dealID, draft)
		s.cacheSignedURLs(client, dealID, draft)
	}

	s.mu.Lock()
	s.dealID = dealID
	s.serverDraft = *draft
	s.editedProps = PropertyDetailsPatch{}
	s.editedRR = nil
	s.editedT12 = nil
	s.dirty = false
	s.editGen++
	s.mu.Unlock()

	s.notify()
	return s.State(), nil
}

// UpdatePropertyDetails shallow-merges the given fields into the local
// edits and marks the state dirty. An empty patch still counts as a
// mutation; dirtiness is mutation-triggered, not diff-triggered.
func (s *Service) UpdatePropertyDetails(patch PropertyDetailsPatch) {
	s.mu.Lock()
	s.editedProps.mergeFrom(&patch)
	s.dirty = true
	s.editGen++
	s.mu.Unlock()
	s.notify()
}

// UpdateRentRollData replaces the rent roll wholesale and marks the
// state dirty.
func (s *Service) UpdateRentRollData(rows []RentRollRow) {
	copied := append([]RentRollRow(nil), rows...)

	s.mu.Lock()
	s.editedRR = &copied
	s.dirty = true
	s.editGen++
	s.mu.Unlock()
	s.notify()
}

// UpdateT12Data replaces the T-12 line items wholesale and marks the
// state dirty.
func (s *Service) UpdateT12Data(rows []T12Row) {
	copied := append([]T12Row(nil), rows...)

	s.mu.Lock()
	s.editedT12 = &copied
	s.dirty = true
	s.editGen++
	s.mu.Unlock()
	s.notify()
}

// State returns the merged view: the server draft with local edits
// applied on top. The result is a copy; mutating it does not touch the
// store.
func (s *Service) State() *VerificationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mergedLocked()
}

func (s *Service) mergedLocked() *VerificationState {
	state := &VerificationState{
		DealID:            s.dealID,
		PropertyDetails:   s.serverDraft.PropertyDetails,
		Status:            s.serverDraft.Status,
		HasUnsavedChanges: s.dirty,
	}
	s.editedProps.applyTo(&state.PropertyDetails)

	if s.editedRR != nil {
		state.RentRoll = append([]RentRollRow(nil), *s.editedRR...)
	} else {
		state.RentRoll = append([]RentRollRow(nil), s.serverDraft.RentRoll...)
	}
	if s.editedT12 != nil {
		state.T12 = append([]T12Row(nil), *s.editedT12...)
	} else {
		state.T12 = append([]T12Row(nil), s.serverDraft.T12...)
	}
	return state
}

// HasUnsavedChanges reports whether local edits have not been persisted
func (s *Service) HasUnsavedChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// HasRentRollData reports whether the merged rent roll is non-empty
func (s *Service) HasRentRollData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.editedRR != nil {
		return len(*s.editedRR) > 0
	}
	return len(s.serverDraft.RentRoll) > 0
}

// HasT12Data reports whether the merged T-12 is non-empty
func (s *Service) HasT12Data() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.editedT12 != nil {
		return len(*s.editedT12) > 0
	}
	return len(s.serverDraft.T12) > 0
}

// ActiveDealID returns the deal whose draft is loaded, if any
func (s *Service) ActiveDealID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dealID
}

// DocumentURLs returns the signed source-document URLs from the draft
func (s *Service) DocumentURLs() DocumentURLs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverDraft.DocumentURLs
}

// Persist flushes the local edits to the backend. Only changed fields
// are sent. On success the edits are folded into the server draft and
// the dirty flag clears; on failure everything stays as it was. Edits
// made while the save is in flight were not part of the request, so
// they survive it and stay dirty for the next save.
func (s *Service) Persist() error {
	s.mu.RLock()
	client := s.client
	dealID := s.dealID
	dirty := s.dirty
	gen := s.editGen
	payload := UpdateDealRequest{
		PropertyDetailsPatch: s.editedProps,
		RentRoll:             s.editedRR,
		T12:                  s.editedT12,
	}
	s.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("not signed in")
	}
	if dealID == "" {
		return fmt.Errorf("no deal loaded")
	}
	if !dirty {
		return nil
	}

	resp, err := client.Put(fmt.Sprintf("api/v1/deals/%s", dealID), payload)
	if err != nil {
		return fmt.Errorf("failed to save deal: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to save deal: HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	// Prefer the backend's echo of the updated deal; fall back to
	// folding the edits in locally if the body does not parse.
	var updated DraftResponse
	useEcho := json.Unmarshal(resp.Body(), &updated) == nil && updated.ID != ""

	s.mu.Lock()
	if s.dealID != dealID {
		// A different deal was loaded mid-save; nothing left to fold.
		s.mu.Unlock()
		log.Printf("Persisted deal %s (no longer loaded)", dealID)
		return nil
	}

	if useEcho {
		// Keep the signed URLs already held; the update echo may omit them.
		urls := s.serverDraft.DocumentURLs
		s.serverDraft = updated
		if s.serverDraft.OMFileURL == "" {
			s.serverDraft.DocumentURLs = urls
		}
	} else {
		// Fold in the snapshot that was actually sent, not the live
		// edit fields, which may have moved on since.
		payload.PropertyDetailsPatch.applyTo(&s.serverDraft.PropertyDetails)
		if payload.RentRoll != nil {
			s.serverDraft.RentRoll = *payload.RentRoll
		}
		if payload.T12 != nil {
			s.serverDraft.T12 = *payload.T12
		}
	}

	raced := s.editGen != gen
	if !raced {
		s.editedProps = PropertyDetailsPatch{}
		s.editedRR = nil
		s.editedT12 = nil
		s.dirty = false
	}
	draft := s.serverDraft
	s.mu.Unlock()

	s.cacheDraft(dealID, &draft)
	s.notify()

	if raced {
		log.Printf("Persisted deal %s; newer edits pending", dealID)
	} else {
		log.Printf("Persisted deal %s", dealID)
	}
	return nil
}

// UpdateDealStatus moves the deal through the pipeline (active, draft
// or dead). A passthrough call; the verification state is untouched.
func (s *Service) UpdateDealStatus(dealID, status string) error {
	if !validDealStatuses[status] {
		return fmt.Errorf("invalid deal status: %s", status)
	}

	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("not signed in")
	}

	resp, err := client.Put(fmt.Sprintf("api/v1/pipeline/%s/status", dealID), map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("failed to update deal status: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to update deal status: HTTP %d", resp.StatusCode())
	}

	s.mu.Lock()
	if s.dealID == dealID {
		s.serverDraft.Status = status
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// ListDeals returns the user's deal pipeline for the dashboard
func (s *Service) ListDeals() ([]DealSummary, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return nil, fmt.Errorf("not signed in")
	}

	resp, err := client.Get("api/v1/deals", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to list deals: HTTP %d", resp.StatusCode())
	}

	var deals []DealSummary
	if err := json.Unmarshal(resp.Body(), &deals); err != nil {
		return nil, fmt.Errorf("failed to parse deals: %w", err)
	}
	return deals, nil
}

func (s *Service) fetchDraft(client *api.Client, dealID string) (*DraftResponse, error) {
	resp, err := client.Get(fmt.Sprintf("api/v1/upload/draft/%s", dealID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch draft: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to fetch draft: HTTP %d", resp.StatusCode())
	}

	var draft DraftResponse
	if err := json.Unmarshal(resp.Body(), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse draft: %w", err)
	}
	return &draft, nil
}

func (s *Service) cacheSignedURLs(client *api.Client, dealID string, draft *DraftResponse) {
	client.CacheSignedURL(fmt.Sprintf("deals/%s/om", dealID), draft.OMFileURL)
	client.CacheSignedURL(fmt.Sprintf("deals/%s/rent_roll", dealID), draft.RentRollFileURL)
	client.CacheSignedURL(fmt.Sprintf("deals/%s/t12", dealID), draft.T12FileURL)
	client.CacheSignedURL(fmt.Sprintf("deals/%s/excel", dealID), draft.ExcelFileURL)
}

// cacheDraft mirrors the draft to the local deal_drafts row so a
// previously opened deal still renders without a network connection.
func (s *Service) cacheDraft(dealID string, draft *DraftResponse) {
	if s.db == nil {
		return
	}

	props, _ := json.Marshal(draft.PropertyDetails)
	rr, _ := json.Marshal(draft.RentRoll)
	t12, _ := json.Marshal(draft.T12)

	row := &models.DealDraft{
		DealID:       dealID,
		PropertyJSON: string(props),
		RentRollJSON: string(rr),
		T12JSON:      string(t12),
		Status:       draft.Status,
		FetchedAt:    time.Now(),
	}
	if err := s.db.Save(row).Error; err != nil {
		log.Printf("Failed to cache draft for deal %s: %v", dealID, err)
	}
}

func (s *Service) cachedDraft(dealID string) (*DraftResponse, error) {
	if s.db == nil {
		return nil, fmt.Errorf("no cached draft for deal %s", dealID)
	}

	var row models.DealDraft
	if err := s.db.First(&row, "deal_id = ?", dealID).Error; err != nil {
		return nil, fmt.Errorf("no cached draft for deal %s", dealID)
	}

	draft := &DraftResponse{ID: dealID, Status: row.Status}
	_ = json.Unmarshal([]byte(row.PropertyJSON), &draft.PropertyDetails)
	_ = json.Unmarshal([]byte(row.RentRollJSON), &draft.RentRoll)
	_ = json.Unmarshal([]byte(row.T12JSON), &draft.T12)
	return draft, nil
}

func (s *Service) notify() {
	if s.emit == nil {
		return
	}
	s.mu.RLock()
	state := s.mergedLocked()
	s.mu.RUnlock()
	s.emit("verification:changed", state)
}
