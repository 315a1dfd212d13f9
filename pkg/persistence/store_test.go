package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonmaster/pkg/scene"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "game.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedCampaign(t *testing.T, store *Store) *Campaign {
	t.Helper()
	c := &Campaign{Name: "Lost Mine", Description: "Starter adventure", World: "SwordCoast", Outline: `{"arc":"rescue Gundren"}`}
	require.NoError(t, store.CreateCampaign(context.Background(), c))
	return c
}

func TestSchemaVersion(t *testing.T) {
	store := newTestStore(t)

	version, err := GetSchemaVersion(store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, store.Close())
	reopened, err := Open(store.Path())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	version, err = GetSchemaVersion(reopened.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestMigrateFromVersion1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)

	v1 := []string{
		`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`,
		`CREATE TABLE campaigns (id TEXT PRIMARY KEY, name TEXT NOT NULL, description TEXT NOT NULL DEFAULT '',
			world TEXT NOT NULL DEFAULT '', outline TEXT NOT NULL DEFAULT '', created_at DATETIME NOT NULL, last_played DATETIME)`,
		`CREATE TABLE sessions (id TEXT PRIMARY KEY, campaign_id TEXT NOT NULL, number INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'open', plan TEXT NOT NULL DEFAULT '{}', scene TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '', turn_count INTEGER NOT NULL DEFAULT 0, created_at DATETIME NOT NULL,
			last_activity DATETIME NOT NULL, closed_at DATETIME)`,
		`CREATE TABLE turns (session_id TEXT NOT NULL, number INTEGER NOT NULL, player_input TEXT NOT NULL,
			narrative TEXT NOT NULL, intent TEXT NOT NULL DEFAULT '', scene TEXT NOT NULL, summary TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '{}', created_at DATETIME NOT NULL, PRIMARY KEY (session_id, number))`,
		`CREATE TABLE memories (id INTEGER PRIMARY KEY AUTOINCREMENT, campaign_id TEXT NOT NULL, session_id TEXT NOT NULL,
			turn_number INTEGER NOT NULL, kind TEXT NOT NULL DEFAULT '', keys TEXT NOT NULL DEFAULT '[]',
			summary TEXT NOT NULL DEFAULT '', raw TEXT NOT NULL DEFAULT '{}', created_at DATETIME NOT NULL)`,
		`INSERT INTO schema_version (version) VALUES (1)`,
	}
	for _, stmt := range v1 {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	store, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	version, err := GetSchemaVersion(store.db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = store.db.Exec("SELECT combat_action FROM turns")
	assert.NoError(t, err)
}

func TestCampaigns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := seedCampaign(t, store)
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.CreatedAt.IsZero())

	unnamed := &Campaign{}
	require.NoError(t, store.CreateCampaign(ctx, unnamed))
	assert.Equal(t, "Campaign "+unnamed.ID, unnamed.Name)

	got, err := store.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lost Mine", got.Name)
	assert.Equal(t, `{"arc":"rescue Gundren"}`, got.Outline)
	assert.Nil(t, got.LastPlayed)

	all, err := store.ListCampaigns(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = store.GetCampaign(ctx, "camp_missing")
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestCreateSessionRules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := seedCampaign(t, store)

	first := &Session{CampaignID: c.ID, Plan: json.RawMessage(`{"session_title":"Goblin Arrows","beats":[]}`), Scene: scene.New()}
	require.NoError(t, store.CreateSession(ctx, first))
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, SessionStatusOpen, first.Status)

	err := store.CreateSession(ctx, &Session{CampaignID: c.ID, Scene: scene.New()})
	assert.ErrorIs(t, err, ErrOpenSessionExists)

	require.NoError(t, store.CloseSession(ctx, first.ID, "The party reached Phandalin."))
	assert.ErrorIs(t, store.CloseSession(ctx, first.ID, "again"), ErrSessionClosed)

	second := &Session{CampaignID: c.ID, Scene: scene.New()}
	require.NoError(t, store.CreateSession(ctx, second))
	assert.Equal(t, 2, second.Number)
	assert.JSONEq(t, `{}`, string(second.Plan))

	err = store.CreateSession(ctx, &Session{CampaignID: "camp_missing", Scene: scene.New()})
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	sessions, err := store.ListSessions(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 2, sessions[0].Number)

	closed, err := store.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, closed.Open())
	assert.Equal(t, "The party reached Phandalin.", closed.Summary)
	require.NotNil(t, closed.ClosedAt)

	active, err := store.ActiveSession(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	_, err = store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSaveTurnIsAtomicUnit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := seedCampaign(t, store)

	sess := &Session{CampaignID: c.ID, Scene: scene.New()}
	require.NoError(t, store.CreateSession(ctx, sess))

	st := scene.New()
	st.SpecificLocation = "Cragmaw Hideout"
	st.Participants = []string{"Klarg"}

	turn := &Turn{
		SessionID:    sess.ID,
		PlayerInput:  "I sneak into the cave.",
		Narrative:    "Water rushes past your boots.",
		Intent:       "narrative_short",
		Scene:        st,
		Summary:      "Entered the hideout.",
		Payload:      json.RawMessage(`{"turn_summary":"Entered the hideout."}`),
		CombatAction: "update",
	}
	commit := TurnCommit{
		Turn:           turn,
		SessionSummary: "Entered the hideout.",
		Memories: []Memory{
			{Kind: "event", Keys: []string{"Cragmaw"}, Summary: "Found the hideout.", Raw: json.RawMessage(`{"type":"event"}`)},
		},
	}
	require.NoError(t, store.SaveTurn(ctx, commit))
	assert.Equal(t, 1, turn.Number)
	assert.NotZero(t, commit.Memories[0].ID)

	second := &Turn{SessionID: sess.ID, PlayerInput: "I attack.", Narrative: "Klarg roars.", Scene: st}
	require.NoError(t, store.SaveTurn(ctx, TurnCommit{Turn: second}))
	assert.Equal(t, 2, second.Number)

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TurnCount)
	assert.Equal(t, "Cragmaw Hideout", got.Scene.SpecificLocation)
	assert.Equal(t, []string{"Klarg"}, got.Scene.Participants)
	assert.Equal(t, "Entered the hideout.", got.Summary, "empty summary keeps the previous one")

	turns, err := store.RecentTurns(ctx, sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, 2, turns[0].Number)

	turns, err = store.RecentTurns(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "I sneak into the cave.", turns[0].PlayerInput)
	assert.Equal(t, "update", turns[0].CombatAction)
	assert.JSONEq(t, `{"turn_summary":"Entered the hideout."}`, string(turns[0].Payload))
	assert.JSONEq(t, `{}`, string(turns[1].Payload))

	memories, err := store.ListMemories(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "event", memories[0].Kind)
	assert.Equal(t, []string{"Cragmaw"}, memories[0].Keys)
	assert.Equal(t, 1, memories[0].TurnNumber)

	camp, err := store.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, camp.LastPlayed)
}

func TestSaveTurnRejectsClosedSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := seedCampaign(t, store)

	sess := &Session{CampaignID: c.ID, Scene: scene.New()}
	require.NoError(t, store.CreateSession(ctx, sess))
	require.NoError(t, store.CloseSession(ctx, sess.ID, "done"))

	err := store.SaveTurn(ctx, TurnCommit{Turn: &Turn{SessionID: sess.ID, Scene: scene.New()}})
	assert.ErrorIs(t, err, ErrSessionClosed)

	err = store.SaveTurn(ctx, TurnCommit{Turn: &Turn{SessionID: "missing", Scene: scene.New()}})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	turns, err := store.RecentTurns(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestSaveTurnCancelledContextWritesNothing(t *testing.T) {
	store := newTestStore(t)
	c := seedCampaign(t, store)
	sess := &Session{CampaignID: c.ID, Scene: scene.New()}
	require.NoError(t, store.CreateSession(context.Background(), sess))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.SaveTurn(ctx, TurnCommit{Turn: &Turn{SessionID: sess.ID, Scene: scene.New()}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	got, err := store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TurnCount)
}

func TestConcurrentSaveTurnsNumberSequentially(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := seedCampaign(t, store)
	sess := &Session{CampaignID: c.ID, Scene: scene.New()}
	require.NoError(t, store.CreateSession(ctx, sess))

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.SaveTurn(ctx, TurnCommit{Turn: &Turn{SessionID: sess.ID, Scene: scene.New()}}))
		}()
	}
	wg.Wait()

	turns, err := store.RecentTurns(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, n)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Number)
	}
}
