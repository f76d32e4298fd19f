package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"opsportal/internal/domain"
)

type call struct {
	entityID string
	key      string
	payload  map[string]any
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []call
	err   error
	gate  chan struct{}
	start chan struct{}
}

func (f *fakeExecutor) Execute(_ context.Context, entityID, key string, payload map[string]any) error {
	if f.start != nil {
		f.start <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{entityID, key, payload})
	return f.err
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type scriptedPrompter struct {
	confirm  bool
	input    string
	err      error
	confirms []string
	prompts  []string
}

func (p *scriptedPrompter) Confirm(_ context.Context, msg string) (bool, error) {
	p.confirms = append(p.confirms, msg)
	return p.confirm, p.err
}

func (p *scriptedPrompter) Prompt(_ context.Context, msg string) (string, error) {
	p.prompts = append(p.prompts, msg)
	return p.input, p.err
}

type recordingNotifier struct {
	got []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.got = append(r.got, n)
}

func bindOne(t *testing.T, b *Binder, d domain.ActionDescriptor, c Collaborators) *BoundAction {
	t.Helper()
	bound := b.Bind("ORD-1", []domain.ActionDescriptor{d}, c)
	require.Len(t, bound, 1)
	return bound[0]
}

func TestOptionalPromptProceedsWithoutNotes(t *testing.T) {
	exec := &fakeExecutor{}
	d := domain.NewDescriptor("archive", "Archive", domain.VariantSecondary)
	d.Prompt = "Optional: reason"
	a := bindOne(t, NewBinder(nil, nil), d, Collaborators{Executor: exec, Prompter: &scriptedPrompter{input: "  "}})

	out, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out)
	require.Equal(t, 1, exec.count())
	_, has := exec.calls[0].payload[NotesKey]
	assert.False(t, has)
}

func TestRequiredPromptAbortsOnEmptyInput(t *testing.T) {
	exec := &fakeExecutor{}
	d := domain.NewDescriptor("reject", "Reject", domain.VariantDanger)
	d.Prompt = "Reason:"
	a := bindOne(t, NewBinder(nil, nil), d, Collaborators{Executor: exec, Prompter: &scriptedPrompter{}})

	out, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, out)
	assert.Equal(t, 0, exec.count())
}

func TestNotesMergeWithStaticPayload(t *testing.T) {
	exec := &fakeExecutor{}
	d := domain.NewDescriptor("reject", "Reject", domain.VariantDanger)
	d.Prompt = "Reason:"
	d.Payload = map[string]any{"source": "hub"}
	a := bindOne(t, NewBinder(nil, nil), d, Collaborators{Executor: exec, Prompter: &scriptedPrompter{input: " out of stock "}})

	_, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, exec.count())
	assert.Equal(t, map[string]any{"source": "hub", NotesKey: "out of stock"}, exec.calls[0].payload)
	assert.Equal(t, call{"ORD-1", "reject", exec.calls[0].payload}, exec.calls[0])
	assert.Equal(t, map[string]any{"source": "hub"}, d.Payload)
}

func TestDeclinedConfirmationHasNoSideEffects(t *testing.T) {
	exec := &fakeExecutor{}
	notifier := &recordingNotifier{}
	prompter := &scriptedPrompter{confirm: false, input: "anything"}
	d := domain.NewDescriptor("cancel", "Cancel", domain.VariantDanger)
	d.Confirm = "Cancel order ORD-1?"
	d.Prompt = "Reason:"
	a := bindOne(t, NewBinder(notifier, nil), d, Collaborators{Executor: exec, Prompter: prompter})

	out, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, out)
	assert.Equal(t, 0, exec.count())
	assert.Empty(t, notifier.got)
	assert.Equal(t, []string{"Cancel order ORD-1?"}, prompter.confirms)
	assert.Empty(t, prompter.prompts)
}

func TestCloseOnSuccess(t *testing.T) {
	var closed []Selection
	surface := NewSurface(func(s Selection) { closed = append(closed, s) })
	exec := &fakeExecutor{}
	b := NewBinder(nil, nil)

	keepOpen := domain.NewDescriptor("acknowledge", "Acknowledge", domain.VariantPrimary)
	keepOpen.CloseOnSuccess = false
	surface.Open(domain.KindReport, "ORD-1")
	_, err := bindOne(t, b, keepOpen, Collaborators{Executor: exec, Surface: surface}).Run(context.Background())
	require.NoError(t, err)
	_, open := surface.Current()
	assert.True(t, open)

	closing := domain.NewDescriptor("resolve", "Resolve", domain.VariantPrimary)
	_, err = bindOne(t, b, closing, Collaborators{Executor: exec, Surface: surface}).Run(context.Background())
	require.NoError(t, err)
	_, open = surface.Current()
	assert.False(t, open)
	assert.Equal(t, []Selection{{Kind: domain.KindReport, ID: "ORD-1"}}, closed)
}

func TestFailureNotifiesAndKeepsSurfaceOpen(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	notifier := &recordingNotifier{}
	surface := &Surface{}
	surface.Open(domain.KindOrder, "ORD-1")
	exec := &fakeExecutor{err: errors.New("backend unavailable")}
	a := bindOne(t, NewBinder(notifier, zap.New(core)), domain.NewDescriptor("accept", "Accept", domain.VariantPrimary), Collaborators{Executor: exec, Surface: surface})

	out, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, out)
	require.Len(t, notifier.got, 1)
	assert.Equal(t, Notification{EntityID: "ORD-1", ActionKey: "accept", Message: "backend unavailable"}, notifier.got[0])
	_, open := surface.Current()
	assert.True(t, open)
	assert.Equal(t, 1, logs.FilterMessage("action failed").Len())
	assert.False(t, a.Loading())
}

func TestPromptErrorIsAFailure(t *testing.T) {
	exec := &fakeExecutor{}
	notifier := &recordingNotifier{}
	d := domain.NewDescriptor("reject", "Reject", domain.VariantDanger)
	d.Prompt = "Reason:"
	a := bindOne(t, NewBinder(notifier, nil), d, Collaborators{Executor: exec, Prompter: &scriptedPrompter{err: errors.New("stdin closed")}})

	out, err := a.Run(context.Background())
	assert.Equal(t, OutcomeFailed, out)
	assert.ErrorContains(t, err, "stdin closed")
	assert.Len(t, notifier.got, 1)
	assert.Equal(t, 0, exec.count())
}

func TestExecutorPanicIsContained(t *testing.T) {
	a := bindOne(t, NewBinder(nil, nil), domain.NewDescriptor("start", "Start", domain.VariantPrimary), Collaborators{Executor: panicky{}})
	out, err := a.Run(context.Background())
	assert.Equal(t, OutcomeFailed, out)
	assert.ErrorContains(t, err, "panicked")
}

type panicky struct{}

func (panicky) Execute(context.Context, string, string, map[string]any) error { panic("boom") }

func TestDuplicateRunIsNoOp(t *testing.T) {
	exec := &fakeExecutor{gate: make(chan struct{}), start: make(chan struct{}, 1)}
	b := NewBinder(nil, nil)
	d := domain.NewDescriptor("accept", "Accept", domain.VariantPrimary)
	first := bindOne(t, b, d, Collaborators{Executor: exec})
	second := bindOne(t, b, d, Collaborators{Executor: exec})
	other := b.Bind("ORD-2", []domain.ActionDescriptor{d}, Collaborators{Executor: &fakeExecutor{}})[0]

	done := make(chan Outcome)
	go func() {
		out, _ := first.Run(context.Background())
		done <- out
	}()
	<-exec.start
	assert.True(t, first.Loading())
	assert.True(t, second.Loading())
	assert.False(t, other.Loading())

	out, err := second.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)

	out, err = other.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out)

	close(exec.gate)
	assert.Equal(t, OutcomeCompleted, <-done)
	assert.Equal(t, 1, exec.count())
	assert.False(t, first.Loading())
}

func TestBindKeepsOrderAndHidesProtocolFields(t *testing.T) {
	ds := []domain.ActionDescriptor{
		domain.NewDescriptor("restore", "Restore", domain.VariantPrimary),
		domain.NewDescriptor("delete", "Delete", domain.VariantDanger),
	}
	bound := NewBinder(nil, nil).Bind("X", ds, Collaborators{})
	require.Len(t, bound, 2)
	assert.Equal(t, "Restore", bound[0].Label)
	assert.Equal(t, domain.VariantDanger, bound[1].Variant)
	assert.True(t, bound[1].CloseOnSuccess)
}

func TestPromptIsOptional(t *testing.T) {
	assert.True(t, PromptIsOptional("Optional: reason for archiving"))
	assert.True(t, PromptIsOptional("notes (OPTIONAL)"))
	assert.False(t, PromptIsOptional("Reason:"))
}
