package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kaenova/prompty/internal/authz"
	"github.com/kaenova/prompty/internal/credentials"
	"github.com/kaenova/prompty/internal/events"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
	"github.com/kaenova/prompty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	*Services
	store  *interceptStore
	events *events.Recorder
	clock  *fakeClock
}

// interceptStore runs a one-shot hook right before a chosen write, letting a
// test interleave a competing operation between another one's read and write.
type interceptStore struct {
	store.Store

	mu   sync.Mutex
	op   string
	coll store.Collection
	hook func()
}

// before arms fn to run once, before the next op ("replace" or "delete") on c.
func (s *interceptStore) before(op string, c store.Collection, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.op, s.coll, s.hook = op, c, fn
}

func (s *interceptStore) fire(op string, c store.Collection) {
	s.mu.Lock()
	hook := s.hook
	if hook == nil || op != s.op || c != s.coll {
		s.mu.Unlock()
		return
	}
	s.hook = nil
	s.mu.Unlock()
	hook()
}

func (s *interceptStore) Replace(ctx context.Context, c store.Collection, id string, data []byte, expected int64) (int64, error) {
	s.fire("replace", c)
	return s.Store.Replace(ctx, c, id, data, expected)
}

func (s *interceptStore) DeleteVersion(ctx context.Context, c store.Collection, id string, expected int64) error {
	s.fire("delete", c)
	return s.Store.DeleteVersion(ctx, c, id, expected)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

// Advance moves the clock forward.
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := &interceptStore{Store: store.NewMemoryStore()}
	log := logger.Discard()
	engine, err := authz.NewEngine(s, log)
	require.NoError(t, err)

	rec := &events.Recorder{}
	clock := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	svc := New(Deps{
		Store:  s,
		Authz:  engine,
		Creds:  credentials.NewGenerator(nil).WithCost(bcrypt.MinCost),
		Events: events.NewEmitter(rec, log),
		Log:    log,
		Now:    clock.Now,
	}, DefaultInviteTTL)
	return &fixture{Services: svc, store: s, events: rec, clock: clock}
}

// user inserts an account directly.
func (f *fixture) user(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u, err := createUser(context.Background(), f.Users.Deps, name, name+"@example.com", "password123", role)
	require.NoError(t, err)
	return u
}

func assertAppError(t *testing.T, err error, kind apperrors.Kind, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperrors.KindOf(err), "kind of %v", err)
	if reason != "" {
		assert.Equal(t, reason, apperrors.ReasonOf(err), "reason of %v", err)
	}
}

func TestPromptLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner", models.RoleUser)
	editor := f.user(t, "editor", models.RoleUser)

	project, err := f.Projects.Create(ctx, "Support", "support bots", owner.ID)
	require.NoError(t, err)
	_, err = f.Projects.AddMember(ctx, project.ID, owner.ID, editor.Email, models.PermissionEditor)
	require.NoError(t, err)

	agent, err := f.Agents.Create(ctx, project.ID, editor.ID, "triage", "")
	require.NoError(t, err)
	p1, err := f.Prompts.Create(ctx, agent.ID, editor.ID, "You are helpful.")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	p2, err := f.Prompts.Create(ctx, agent.ID, editor.ID, "You are very helpful.")
	require.NoError(t, err)

	_, err = f.Agents.Activate(ctx, agent.ID, editor.ID, p1.ID)
	require.NoError(t, err)

	_, err = f.Prompts.Update(ctx, p1.ID, editor.ID, "rewritten while active")
	assertAppError(t, err, apperrors.KindConflict, "prompt_active")
	assertAppError(t, f.Prompts.Delete(ctx, p1.ID, editor.ID), apperrors.KindConflict, "prompt_active")
	unchanged, err := f.Prompts.Get(ctx, p1.ID, editor.ID)
	require.NoError(t, err)
	assert.Equal(t, "You are helpful.", unchanged.PromptText)
	active, err := f.Agents.ActivePrompt(ctx, project.ID, "triage")
	require.NoError(t, err)
	assert.Equal(t, "You are helpful.", active.PromptText)

	_, err = f.Agents.Deactivate(ctx, agent.ID, editor.ID)
	require.NoError(t, err)

	updated, err := f.Prompts.Update(ctx, p1.ID, editor.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.PromptText)

	_, err = f.Agents.Activate(ctx, agent.ID, editor.ID, p2.ID)
	require.NoError(t, err)
	require.NoError(t, f.Prompts.Delete(ctx, p1.ID, editor.ID))

	active, err = f.Agents.ActivePrompt(ctx, project.ID, "triage")
	require.NoError(t, err)
	assert.Equal(t, p2.ID, active.PromptID)
	assert.Equal(t, "You are very helpful.", active.PromptText)

	prompts, err := f.Prompts.List(ctx, agent.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, prompts, 1)

	assert.Equal(t, []events.Type{
		events.PromptActivated,
		events.PromptDeactivated,
		events.PromptActivated,
	}, f.events.Types())
}

func TestViewerCannotCreateAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner", models.RoleUser)
	viewer := f.user(t, "viewer", models.RoleUser)

	project, err := f.Projects.Create(ctx, "P", "", owner.ID)
	require.NoError(t, err)
	_, err = f.Projects.AddMember(ctx, project.ID, owner.ID, viewer.Email, models.PermissionViewer)
	require.NoError(t, err)

	_, err = f.Agents.Create(ctx, project.ID, viewer.ID, "bot", "")
	assertAppError(t, err, apperrors.KindForbidden, "insufficient_permissions")

	agents, err := f.Agents.List(ctx, project.ID, viewer.ID)
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestAgentRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner", models.RoleUser)
	outsider := f.user(t, "outsider", models.RoleUser)
	project, err := f.Projects.Create(ctx, "P", "", owner.ID)
	require.NoError(t, err)

	a, err := f.Agents.Create(ctx, project.ID, owner.ID, "bot", "")
	require.NoError(t, err)
	b, err := f.Agents.Create(ctx, project.ID, owner.ID, "other", "")
	require.NoError(t, err)

	_, err = f.Agents.Create(ctx, project.ID, owner.ID, "bot", "")
	assertAppError(t, err, apperrors.KindConflict, "agent_name_taken")
	_, err = f.Agents.Create(ctx, project.ID, owner.ID, "  ", "")
	assertAppError(t, err, apperrors.KindValidation, "")
	_, err = f.Agents.Update(ctx, b.ID, owner.ID, models.AgentUpdate{Name: "bot"})
	assertAppError(t, err, apperrors.KindConflict, "agent_name_taken")

	_, err = f.Agents.Get(ctx, a.ID, outsider.ID)
	assertAppError(t, err, apperrors.KindForbidden, "")
	_, err = f.Agents.Get(ctx, "missing", owner.ID)
	assertAppError(t, err, apperrors.KindNotFound, "agent_not_found")

	pa, err := f.Prompts.Create(ctx, a.ID, owner.ID, "a's prompt")
	require.NoError(t, err)
	_, err = f.Agents.Activate(ctx, a.ID, owner.ID, pa.ID)
	require.NoError(t, err)
	before, err := f.Agents.Get(ctx, a.ID, owner.ID)
	require.NoError(t, err)

	pb, err := f.Prompts.Create(ctx, b.ID, owner.ID, "b's prompt")
	require.NoError(t, err)
	_, err = f.Agents.Activate(ctx, a.ID, owner.ID, pb.ID)
	assertAppError(t, err, apperrors.KindConflict, "prompt_agent_mismatch")
	_, err = f.Agents.Activate(ctx, a.ID, owner.ID, "missing")
	assertAppError(t, err, apperrors.KindNotFound, "prompt_not_found")

	after, err := f.Agents.Get(ctx, a.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, after.ActiveAgentPromptID)
	assert.Equal(t, pa.ID, *after.ActiveAgentPromptID, "rejected activations keep the current prompt")
	assert.Equal(t, before.Version, after.Version, "rejected activations write nothing")

	// Activation and deactivation are idempotent and only announce changes.
	_, err = f.Agents.Activate(ctx, b.ID, owner.ID, pb.ID)
	require.NoError(t, err)
	_, err = f.Agents.Activate(ctx, b.ID, owner.ID, pb.ID)
	require.NoError(t, err)
	first, err := f.Agents.Deactivate(ctx, a.ID, owner.ID)
	require.NoError(t, err)
	second, err := f.Agents.Deactivate(ctx, a.ID, owner.ID)
	require.NoError(t, err)
	assert.Nil(t, first.ActiveAgentPromptID)
	assert.Nil(t, second.ActiveAgentPromptID)
	assert.Equal(t, first.Version, second.Version, "second deactivation writes nothing")
	assert.Equal(t, []events.Type{
		events.PromptActivated,
		events.PromptActivated,
		events.PromptDeactivated,
	}, f.events.Types())

	renamed, err := f.Agents.Update(ctx, a.ID, owner.ID, models.AgentUpdate{Description: "first responder"})
	require.NoError(t, err)
	assert.Equal(t, "bot", renamed.Name)
	assert.Equal(t, "first responder", renamed.Description)
}

func TestActivePromptResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner", models.RoleUser)
	project, err := f.Projects.Create(ctx, "P", "", owner.ID)
	require.NoError(t, err)
	agent, err := f.Agents.Create(ctx, project.ID, owner.ID, "bot", "")
	require.NoError(t, err)

	_, err = f.Agents.ActivePrompt(ctx, project.ID, "nobody")
	assertAppError(t, err, apperrors.KindNotFound, "agent_not_found")
	_, err = f.Agents.ActivePrompt(ctx, project.ID, "bot")
	assertAppError(t, err, apperrors.KindNotFound, "no_active_prompt")

	prompt, err := f.Prompts.Create(ctx, agent.ID, owner.ID, "text")
	require.NoError(t, err)
	_, err = f.Agents.Activate(ctx, agent.ID, owner.ID, prompt.ID)
	require.NoError(t, err)

	// The record disappearing underneath an active pointer is reported distinctly.
	require.NoError(t, f.store.Delete(ctx, store.Prompts, prompt.ID))
	_, err = f.Agents.ActivePrompt(ctx, project.ID, "bot")
	assertAppError(t, err, apperrors.KindNotFound, "prompt_missing")

	// Agents in other projects are invisible.
	other, err := f.Projects.Create(ctx, "Q", "", owner.ID)
	require.NoError(t, err)
	_, err = f.Agents.ActivePrompt(ctx, other.ID, "bot")
	assertAppError(t, err, apperrors.KindNotFound, "agent_not_found")
}

func TestPromptChecksPermissionBeforeActiveGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner", models.RoleUser)
	viewer := f.user(t, "viewer", models.RoleUser)
	project, err := f.Projects.Create(ctx, "P", "", owner.ID)
	require.NoError(t, err)
	_, err = f.Projects.AddMember(ctx, project.ID, owner.ID, viewer.Email, models.PermissionViewer)
	require.NoError(t, err)
	agent, err := f.Agents.Create(ctx, project.ID, owner.ID, "bot", "")
	require.NoError(t, err)
	prompt, err := f.Prompts.Create(ctx, agent.ID, owner.ID, "text")
	require.NoError(t, err)
	_, err = f.Agents.Activate(ctx, agent.ID, owner.ID, prompt.ID)
	require.NoError(t, err)

	_, err = f.Prompts.Update(ctx, prompt.ID, viewer.ID, "x")
	assertAppError(t, err, apperrors.KindForbidden, "insufficient_permissions")
	assertAppError(t, f.Prompts.Delete(ctx, prompt.ID, viewer.ID), apperrors.KindForbidden, "insufficient_permissions")

	got, err := f.Prompts.Get(ctx, prompt.ID, viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, "text", got.PromptText)

	_, err = f.Prompts.Create(ctx, agent.ID, owner.ID, "   ")
	assertAppError(t, err, apperrors.KindValidation, "invalid_prompt")
}

func TestPromptListOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner", models.RoleUser)
	project, err := f.Projects.Create(ctx, "P", "", owner.ID)
	require.NoError(t, err)
	agent, err := f.Agents.Create(ctx, project.ID, owner.ID, "bot", "")
	require.NoError(t, err)

	var created []*models.AgentPrompt
	for i := 0; i < 3; i++ {
		p, err := f.Prompts.Create(ctx, agent.ID, owner.ID, "v")
		require.NoError(t, err)
		created = append(created, p)
		f.clock.Advance(time.Second)
	}

	prompts, err := f.Prompts.List(ctx, agent.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, prompts, 3)
	assert.Equal(t, created[2].ID, prompts[0].ID)
	assert.Equal(t, created[0].ID, prompts[2].ID)
}

// activeFixture builds a project with one agent and one inactive prompt.
func activeFixture(t *testing.T) (*fixture, *models.User, *models.Project, *models.Agent, *models.AgentPrompt) {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner", models.RoleUser)
	project, err := f.Projects.Create(ctx, "P", "", owner.ID)
	require.NoError(t, err)
	agent, err := f.Agents.Create(ctx, project.ID, owner.ID, "bot", "")
	require.NoError(t, err)
	prompt, err := f.Prompts.Create(ctx, agent.ID, owner.ID, "original")
	require.NoError(t, err)
	return f, owner, project, agent, prompt
}

func TestActivationBetweenEditReadAndWrite(t *testing.T) {
	for _, target := range []store.Collection{store.Agents, store.Prompts} {
		t.Run(string(target), func(t *testing.T) {
			f, owner, project, agent, prompt := activeFixture(t)
			ctx := context.Background()

			f.store.before("replace", target, func() {
				_, err := f.Agents.Activate(ctx, agent.ID, owner.ID, prompt.ID)
				require.NoError(t, err)
			})
			_, err := f.Prompts.Update(ctx, prompt.ID, owner.ID, "edited while active")
			assertAppError(t, err, apperrors.KindConflict, "prompt_active")

			active, err := f.Agents.ActivePrompt(ctx, project.ID, "bot")
			require.NoError(t, err)
			assert.Equal(t, "original", active.PromptText)
		})
	}
}

func TestActivationBetweenDeleteReadAndWrite(t *testing.T) {
	f, owner, project, agent, prompt := activeFixture(t)
	ctx := context.Background()

	f.store.before("delete", store.Prompts, func() {
		_, err := f.Agents.Activate(ctx, agent.ID, owner.ID, prompt.ID)
		require.NoError(t, err)
	})
	assertAppError(t, f.Prompts.Delete(ctx, prompt.ID, owner.ID), apperrors.KindConflict, "prompt_active")

	active, err := f.Agents.ActivePrompt(ctx, project.ID, "bot")
	require.NoError(t, err)
	assert.Equal(t, prompt.ID, active.PromptID)
}

func TestDeleteBetweenActivationReadAndWrite(t *testing.T) {
	f, owner, project, agent, prompt := activeFixture(t)
	ctx := context.Background()

	f.store.before("replace", store.Agents, func() {
		require.NoError(t, f.Prompts.Delete(ctx, prompt.ID, owner.ID))
	})
	_, err := f.Agents.Activate(ctx, agent.ID, owner.ID, prompt.ID)
	assertAppError(t, err, apperrors.KindNotFound, "prompt_not_found")

	got, err := f.Agents.Get(ctx, agent.ID, owner.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ActiveAgentPromptID, "no pointer to a deleted prompt")
	_, err = f.Agents.ActivePrompt(ctx, project.ID, "bot")
	assertAppError(t, err, apperrors.KindNotFound, "no_active_prompt")
}
