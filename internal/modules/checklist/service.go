package checklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/loanops/dealbridge/internal/clients/hubspot"
	"github.com/loanops/dealbridge/internal/config"
	"github.com/loanops/dealbridge/internal/events"
)

// HubSpotClient is the subset of the CRM client the service needs.
type HubSpotClient interface {
	GetDealProperties(ctx context.Context, dealID string, names []string) (map[string]string, error)
	UpdateDealProperties(ctx context.Context, dealID string, props map[string]string) error
}

// LoadResult is the checklist view returned to the widget.
type LoadResult struct {
	CollateralType *string           `json:"collateralType"`
	ItemStatuses   map[string]string `json:"itemStatuses"`
	IsSaved        bool              `json:"isSaved"`
	LastSavedAt    string            `json:"lastSavedAt"`
	Empty          bool              `json:"-"`
}

// SaveResult reports the outcome of a save, including which property
// ultimately accepted the state blob.
type SaveResult struct {
	Success           bool   `json:"success"`
	MarkComplete      bool   `json:"markComplete"`
	StatePropertyUsed string `json:"statePropertyUsed"`
}

// Service orchestrates checklist reads and writes: HubSpot is the source
// of truth, the local mirror is a fallback read tier and write-through
// cache.
type Service struct {
	client HubSpotClient
	store  Store
	props  config.PropertyNames
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a checklist service. events may be nil.
func NewService(client HubSpotClient, store Store, props config.PropertyNames, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		client: client,
		store:  store,
		props:  props,
		events: eventManager,
		log:    log.With().Str("service", "checklist").Logger(),
	}
}

// Load reads checklist state for a deal. The primary property is tried
// first, then the fallback property, each through the recovery decoder.
// When HubSpot holds no decodable state the local mirror is consulted
// before reporting an empty checklist.
func (s *Service) Load(ctx context.Context, dealID string) (*LoadResult, error) {
	names := []string{
		s.props.State,
		s.props.FallbackState,
		s.props.CollateralType,
		s.props.CompleteFlag,
		s.props.SavedAt,
	}

	values, err := s.client.GetDealProperties(ctx, dealID, names)
	if err != nil {
		return nil, fmt.Errorf("failed to read deal %s: %w", dealID, err)
	}

	var state *State
	for _, name := range []string{s.props.State, s.props.FallbackState} {
		raw, ok := values[name]
		if !ok || raw == "" {
			continue
		}
		if state = DecodeState(raw); state != nil {
			break
		}
		s.log.Warn().Str("deal_id", dealID).Str("property", name).Msg("Stored state is not recoverable JSON")
	}

	if state == nil {
		mirrored, mErr := s.store.Get(dealID)
		if mErr != nil {
			s.log.Warn().Err(mErr).Str("deal_id", dealID).Msg("Mirror read failed")
		} else if mirrored != nil {
			s.log.Info().Str("deal_id", dealID).Msg("Serving checklist from local mirror")
			state = mirrored
		}
	}

	if state == nil {
		return &LoadResult{Empty: true}, nil
	}

	result := &LoadResult{
		CollateralType: state.CollateralType,
		ItemStatuses:   state.ItemStatuses,
		IsSaved:        values[s.props.CompleteFlag] == "true",
		LastSavedAt:    values[s.props.SavedAt],
	}
	if result.ItemStatuses == nil {
		result.ItemStatuses = map[string]string{}
	}
	return result, nil
}

// Save writes the next state revision to HubSpot. A structured
// property-does-not-exist rejection triggers exactly one retry against the
// fallback property. The mirror is updated only after HubSpot accepts.
func (s *Service) Save(ctx context.Context, dealID string, collateralType *string, itemStatuses map[string]string, markComplete bool) (*SaveResult, error) {
	if itemStatuses == nil {
		itemStatuses = map[string]string{}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	state := &State{
		CollateralType: collateralType,
		ItemStatuses:   itemStatuses,
		UpdatedAt:      now,
		Version:        s.nextVersion(dealID),
	}

	blob, err := EncodeState(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state for deal %s: %w", dealID, err)
	}

	props := map[string]string{
		s.props.SavedAt: now,
	}
	if collateralType != nil {
		props[s.props.CollateralType] = *collateralType
	}
	if markComplete {
		props[s.props.CompleteFlag] = "true"
		props[s.props.Status] = "Checklist complete"
	} else {
		// An unchecked save always clears the flag so a prior completion
		// cannot linger after items are reopened.
		props[s.props.CompleteFlag] = "false"
		props[s.props.Status] = "Checklist in progress"
	}

	propertyUsed, err := s.writeState(ctx, dealID, props, blob)
	if err != nil {
		return nil, err
	}

	if mErr := s.store.Put(dealID, state); mErr != nil {
		s.log.Warn().Err(mErr).Str("deal_id", dealID).Msg("Mirror write failed")
	}

	if s.events != nil {
		s.events.Emit(events.ChecklistSaved, "checklist", map[string]interface{}{
			"deal_id":       dealID,
			"version":       state.Version,
			"mark_complete": markComplete,
		})
	}

	s.log.Info().
		Str("deal_id", dealID).
		Int("version", state.Version).
		Bool("mark_complete", markComplete).
		Str("property", propertyUsed).
		Msg("Checklist saved")

	return &SaveResult{
		Success:           true,
		MarkComplete:      markComplete,
		StatePropertyUsed: propertyUsed,
	}, nil
}

// writeState attempts the primary state property, falling back once when
// HubSpot reports the property does not exist on this portal.
func (s *Service) writeState(ctx context.Context, dealID string, props map[string]string, blob string) (string, error) {
	primary := make(map[string]string, len(props)+1)
	for k, v := range props {
		primary[k] = v
	}
	primary[s.props.State] = blob

	err := s.client.UpdateDealProperties(ctx, dealID, primary)
	if err == nil {
		return s.props.State, nil
	}

	var apiErr *hubspot.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsMissingProperty() {
		return "", fmt.Errorf("failed to update deal %s: %w", dealID, err)
	}

	s.log.Warn().
		Str("deal_id", dealID).
		Str("property", s.props.State).
		Msg("State property missing on portal, retrying with fallback property")

	fallback := make(map[string]string, len(props)+1)
	for k, v := range props {
		fallback[k] = v
	}
	fallback[s.props.FallbackState] = blob

	if err := s.client.UpdateDealProperties(ctx, dealID, fallback); err != nil {
		return "", fmt.Errorf("fallback update failed for deal %s: %w", dealID, err)
	}
	return s.props.FallbackState, nil
}

// nextVersion derives the next revision number from the mirror. First save
// of a deal is version 1.
func (s *Service) nextVersion(dealID string) int {
	previous, err := s.store.Get(dealID)
	if err != nil || previous == nil {
		return 1
	}
	return previous.Version + 1
}
