package checklist

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanops/dealbridge/internal/clients/hubspot"
	"github.com/loanops/dealbridge/internal/config"
	"github.com/loanops/dealbridge/internal/events"
)

// fakeClient records calls and serves scripted responses.
type fakeClient struct {
	properties map[string]string
	getErr     error

	updates    []map[string]string
	updateErrs []error
}

func (f *fakeClient) GetDealProperties(_ context.Context, _ string, _ []string) (map[string]string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.properties, nil
}

func (f *fakeClient) UpdateDealProperties(_ context.Context, _ string, props map[string]string) error {
	f.updates = append(f.updates, props)
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		return err
	}
	return nil
}

func testProps() config.PropertyNames {
	return config.PropertyNames{
		State:          "collateral_checklist_state",
		FallbackState:  "collateral_checklist_data",
		CollateralType: "collateral_type",
		CompleteFlag:   "collateral_checklist_complete",
		Status:         "collateral_checklist_status",
		SavedAt:        "collateral_checklist_saved_at",
	}
}

func newTestService(client *fakeClient, store Store) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return NewService(client, store, testProps(), nil, zerolog.Nop())
}

func missingPropertyError() *hubspot.APIError {
	return &hubspot.APIError{
		StatusCode:  400,
		Category:    "VALIDATION_ERROR",
		SubCategory: "PROPERTY_DOESNT_EXIST",
		Message:     `Property "collateral_checklist_state" does not exist`,
	}
}

func TestLoad_StateFromPrimaryProperty(t *testing.T) {
	client := &fakeClient{properties: map[string]string{
		"collateral_checklist_state":    `{"collateralType":"real_estate","itemStatuses":{"appraisal":"complete"}}`,
		"collateral_checklist_complete": "true",
		"collateral_checklist_saved_at": "2026-08-29T10:00:00Z",
	}}
	svc := newTestService(client, nil)

	result, err := svc.Load(context.Background(), "12345")
	require.NoError(t, err)
	assert.False(t, result.Empty)
	require.NotNil(t, result.CollateralType)
	assert.Equal(t, "real_estate", *result.CollateralType)
	assert.Equal(t, "complete", result.ItemStatuses["appraisal"])
	assert.True(t, result.IsSaved)
	assert.Equal(t, "2026-08-29T10:00:00Z", result.LastSavedAt)
}

func TestLoad_FallsBackToSecondaryProperty(t *testing.T) {
	client := &fakeClient{properties: map[string]string{
		"collateral_checklist_state": `<p>not json at all</p>`,
		"collateral_checklist_data":  `{"collateralType":"equipment","itemStatuses":{}}`,
	}}
	svc := newTestService(client, nil)

	result, err := svc.Load(context.Background(), "12345")
	require.NoError(t, err)
	require.NotNil(t, result.CollateralType)
	assert.Equal(t, "equipment", *result.CollateralType)
	assert.False(t, result.IsSaved)
}

func TestLoad_RecoversMangledState(t *testing.T) {
	client := &fakeClient{properties: map[string]string{
		"collateral_checklist_state": `<p>{&quot;collateralType&quot;:&quot;vehicle&quot;,&quot;itemStatuses&quot;:{&quot;title&quot;:&quot;pending&quot;}}</p>`,
	}}
	svc := newTestService(client, nil)

	result, err := svc.Load(context.Background(), "12345")
	require.NoError(t, err)
	require.NotNil(t, result.CollateralType)
	assert.Equal(t, "vehicle", *result.CollateralType)
	assert.Equal(t, "pending", result.ItemStatuses["title"])
}

func TestLoad_EmptyWhenNothingStored(t *testing.T) {
	client := &fakeClient{properties: map[string]string{}}
	svc := newTestService(client, nil)

	result, err := svc.Load(context.Background(), "12345")
	require.NoError(t, err)
	assert.True(t, result.Empty)
}

func TestLoad_ServesMirrorWhenHubSpotEmpty(t *testing.T) {
	store := NewMemoryStore()
	collateral := "inventory"
	require.NoError(t, store.Put("12345", &State{
		CollateralType: &collateral,
		ItemStatuses:   map[string]string{"count": "complete"},
		Version:        2,
	}))

	client := &fakeClient{properties: map[string]string{}}
	svc := newTestService(client, store)

	result, err := svc.Load(context.Background(), "12345")
	require.NoError(t, err)
	assert.False(t, result.Empty)
	require.NotNil(t, result.CollateralType)
	assert.Equal(t, "inventory", *result.CollateralType)
}

func TestSave_WritesPrimaryProperty(t *testing.T) {
	client := &fakeClient{}
	store := NewMemoryStore()
	svc := newTestService(client, store)

	collateral := "real_estate"
	result, err := svc.Save(context.Background(), "12345", &collateral, map[string]string{"appraisal": "pending"}, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.MarkComplete)
	assert.Equal(t, "collateral_checklist_state", result.StatePropertyUsed)

	require.Len(t, client.updates, 1)
	update := client.updates[0]
	assert.Equal(t, "false", update["collateral_checklist_complete"])
	assert.Equal(t, "real_estate", update["collateral_type"])
	assert.NotEmpty(t, update["collateral_checklist_saved_at"])

	var state State
	require.NoError(t, json.Unmarshal([]byte(update["collateral_checklist_state"]), &state))
	assert.Equal(t, 1, state.Version)
	assert.Equal(t, "pending", state.ItemStatuses["appraisal"])

	mirrored, err := store.Get("12345")
	require.NoError(t, err)
	require.NotNil(t, mirrored)
	assert.Equal(t, 1, mirrored.Version)
}

func TestSave_MarkCompleteSetsFlagAndStatus(t *testing.T) {
	client := &fakeClient{}
	svc := newTestService(client, nil)

	result, err := svc.Save(context.Background(), "12345", nil, map[string]string{"a": "complete"}, true)
	require.NoError(t, err)
	assert.True(t, result.MarkComplete)

	require.Len(t, client.updates, 1)
	assert.Equal(t, "true", client.updates[0]["collateral_checklist_complete"])
	assert.Equal(t, "Checklist complete", client.updates[0]["collateral_checklist_status"])
}

func TestSave_VersionIncrementsAcrossSaves(t *testing.T) {
	client := &fakeClient{}
	store := NewMemoryStore()
	svc := newTestService(client, store)

	_, err := svc.Save(context.Background(), "12345", nil, map[string]string{"a": "pending"}, false)
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), "12345", nil, map[string]string{"a": "complete"}, true)
	require.NoError(t, err)

	mirrored, err := store.Get("12345")
	require.NoError(t, err)
	require.NotNil(t, mirrored)
	assert.Equal(t, 2, mirrored.Version)
}

func TestSave_RetriesWithFallbackProperty(t *testing.T) {
	client := &fakeClient{updateErrs: []error{missingPropertyError()}}
	svc := newTestService(client, nil)

	result, err := svc.Save(context.Background(), "12345", nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "collateral_checklist_data", result.StatePropertyUsed)

	require.Len(t, client.updates, 2)
	assert.Contains(t, client.updates[0], "collateral_checklist_state")
	assert.NotContains(t, client.updates[1], "collateral_checklist_state")
	assert.Contains(t, client.updates[1], "collateral_checklist_data")
}

func TestSave_NoRetryOnOtherErrors(t *testing.T) {
	client := &fakeClient{updateErrs: []error{&hubspot.APIError{
		StatusCode: 401,
		Message:    "invalid token",
	}}}
	svc := newTestService(client, nil)

	_, err := svc.Save(context.Background(), "12345", nil, nil, false)
	require.Error(t, err)
	assert.Len(t, client.updates, 1)
}

func TestSave_FallbackFailureSurfaces(t *testing.T) {
	client := &fakeClient{updateErrs: []error{
		missingPropertyError(),
		&hubspot.APIError{StatusCode: 400, Category: "VALIDATION_ERROR", Message: "still broken"},
	}}
	svc := newTestService(client, nil)

	_, err := svc.Save(context.Background(), "12345", nil, nil, false)
	require.Error(t, err)
	assert.Len(t, client.updates, 2)
}

func TestSave_EmitsEvent(t *testing.T) {
	manager := events.NewManager(zerolog.Nop())
	_, ch := manager.Subscribe(4)

	client := &fakeClient{}
	svc := NewService(client, NewMemoryStore(), testProps(), manager, zerolog.Nop())

	_, err := svc.Save(context.Background(), "12345", nil, map[string]string{"a": "pending"}, false)
	require.NoError(t, err)

	event := <-ch
	assert.Equal(t, events.ChecklistSaved, event.Type)
	assert.Equal(t, "12345", event.Payload["deal_id"])
}
