package engine_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fgalloway/chanserv/pkg/engine"
	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/store"
)

func newTestChannel(t *testing.T, backend *store.MemoryStore, e *engine.Engine) int64 {
	t.Helper()
	id, err := e.CreateChannel(model.ChannelDetails{Name: "General", Owner: 1})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	return id
}

func TestCommitDrainsQueues(t *testing.T) {
	t.Parallel()

	backend := store.NewMemory()
	e := engine.New(backend)
	ch := newTestChannel(t, backend, e)

	if err := e.AddMember(ch, 55, model.DefaultGroup); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := e.AddBan(ch, 66); err != nil {
		t.Fatalf("AddBan: %v", err)
	}
	if err := e.AddAttribute(ch, "welcome", "hello"); err != nil {
		t.Fatalf("AddAttribute: %v", err)
	}

	// Nothing reaches the store before a commit.
	members, err := e.ChannelMembers(ch)
	if err != nil {
		t.Fatalf("ChannelMembers: %v", err)
	}
	if _, ok := members[55]; ok {
		t.Fatal("member visible before commit")
	}

	if err := e.CommitChanges(); err != nil {
		t.Fatalf("CommitChanges: %v", err)
	}

	members, err = e.ChannelMembers(ch)
	if err != nil {
		t.Fatalf("ChannelMembers: %v", err)
	}
	if got := members[55]; got != model.DefaultGroup {
		t.Errorf("member 55 group = %d, want %d", got, model.DefaultGroup)
	}
	bans, err := e.ChannelBans(ch)
	if err != nil {
		t.Fatalf("ChannelBans: %v", err)
	}
	if diff := cmp.Diff([]int64{66}, bans); diff != "" {
		t.Errorf("bans mismatch (-want +got):\n%s", diff)
	}
	attrs, err := e.ChannelAttributes(ch)
	if err != nil {
		t.Fatalf("ChannelAttributes: %v", err)
	}
	if attrs["welcome"] != "hello" {
		t.Errorf("attribute welcome = %q, want %q", attrs["welcome"], "hello")
	}

	// A second commit with nothing pending issues no further writes.
	before := len(backend.Calls())
	if err := e.CommitChanges(); err != nil {
		t.Fatalf("CommitChanges: %v", err)
	}
	if after := len(backend.Calls()); after != before {
		t.Errorf("empty commit issued %d writes", after-before)
	}
}

func TestCommitPhaseOrder(t *testing.T) {
	t.Parallel()

	backend := store.NewMemory()
	e := engine.New(backend)
	ch := newTestChannel(t, backend, e)

	// One operation per phase, queued in scrambled order. The commit must
	// still apply them in the fixed phase order.
	if err := e.ClearAttribute(ch, "old-motd"); err != nil {
		t.Fatalf("ClearAttribute: %v", err)
	}
	if err := e.RemoveBan(ch, 400); err != nil {
		t.Fatalf("RemoveBan: %v", err)
	}
	if err := e.UpdateDetails(ch, model.ChannelDetails{Name: "Renamed", Owner: 1}); err != nil {
		t.Fatalf("UpdateDetails: %v", err)
	}
	if err := e.UpdateAttribute(ch, "topic", "news"); err != nil {
		t.Fatalf("UpdateAttribute: %v", err)
	}
	if err := e.RemoveMember(ch, 200); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if err := e.UpdateGroup(ch, model.Group{ID: model.ModGroup, Name: "Mods", Type: model.GroupTypeModerator}); err != nil {
		t.Fatalf("UpdateGroup: %v", err)
	}
	if err := e.AddBan(ch, 300); err != nil {
		t.Fatalf("AddBan: %v", err)
	}
	if err := e.AddAttribute(ch, "welcome", "hello"); err != nil {
		t.Fatalf("AddAttribute: %v", err)
	}
	if err := e.UpdateMember(ch, 1, model.AdminGroup); err != nil {
		t.Fatalf("UpdateMember: %v", err)
	}
	if err := e.AddMember(ch, 100, model.DefaultGroup); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if err := e.CommitChanges(); err != nil {
		t.Fatalf("CommitChanges: %v", err)
	}

	want := []string{
		"createChannel",
		"addMember",
		"updateMember",
		"removeMember",
		"addBan",
		"removeBan",
		"updateGroup",
		"syncDetails",
		"addAttribute",
		"updateAttribute",
		"clearAttribute",
	}
	if diff := cmp.Diff(want, backend.CallOps()); diff != "" {
		t.Errorf("commit phase order mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitPhaseFailureIsolated(t *testing.T) {
	t.Parallel()

	backend := store.NewMemory()
	e := engine.New(backend)
	ch := newTestChannel(t, backend, e)

	backend.PhaseErrors["member_additions"] = errors.New("database is locked")

	if err := e.AddMember(ch, 55, model.DefaultGroup); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := e.AddBan(ch, 66); err != nil {
		t.Fatalf("AddBan: %v", err)
	}

	// A failed phase never surfaces to the caller.
	if err := e.CommitChanges(); err != nil {
		t.Fatalf("CommitChanges: %v", err)
	}

	members, err := e.ChannelMembers(ch)
	if err != nil {
		t.Fatalf("ChannelMembers: %v", err)
	}
	if _, ok := members[55]; ok {
		t.Error("member landed despite failed addition phase")
	}
	bans, err := e.ChannelBans(ch)
	if err != nil {
		t.Fatalf("ChannelBans: %v", err)
	}
	if diff := cmp.Diff([]int64{66}, bans); diff != "" {
		t.Errorf("ban phase should have run (-want +got):\n%s", diff)
	}

	// Failed items are dropped, not requeued.
	delete(backend.PhaseErrors, "member_additions")
	if err := e.CommitChanges(); err != nil {
		t.Fatalf("CommitChanges: %v", err)
	}
	members, err = e.ChannelMembers(ch)
	if err != nil {
		t.Fatalf("ChannelMembers: %v", err)
	}
	if _, ok := members[55]; ok {
		t.Error("dropped member addition reappeared on the next commit")
	}
}

func TestCancelledOperationsNeverReachStore(t *testing.T) {
	t.Parallel()

	backend := store.NewMemory()
	e := engine.New(backend)
	ch := newTestChannel(t, backend, e)

	if err := e.AddMember(ch, 55, model.DefaultGroup); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := e.RemoveMember(ch, 55); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if err := e.AddBan(ch, 66); err != nil {
		t.Fatalf("AddBan: %v", err)
	}
	if err := e.RemoveBan(ch, 66); err != nil {
		t.Fatalf("RemoveBan: %v", err)
	}

	before := len(backend.Calls())
	if err := e.CommitChanges(); err != nil {
		t.Fatalf("CommitChanges: %v", err)
	}
	if after := len(backend.Calls()); after != before {
		t.Errorf("cancelled operations issued %d writes", after-before)
	}
}

func TestRejoinBeforeCommitKeepsRow(t *testing.T) {
	t.Parallel()

	backend := store.NewMemory()
	e := engine.New(backend)
	ch := newTestChannel(t, backend, e)

	// The member's row is already durable from an earlier cycle.
	if err := e.AddMember(ch, 55, model.ModGroup); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := e.CommitChanges(); err != nil {
		t.Fatalf("CommitChanges: %v", err)
	}

	// Leave and rejoin within one cycle: the removal is cancelled and the
	// rejoin lands as an update against the surviving row.
	if err := e.RemoveMember(ch, 55); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if err := e.AddMember(ch, 55, model.DefaultGroup); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := e.CommitChanges(); err != nil {
		t.Fatalf("CommitChanges: %v", err)
	}

	members, err := e.ChannelMembers(ch)
	if err != nil {
		t.Fatalf("ChannelMembers: %v", err)
	}
	if got, ok := members[55]; !ok || got != model.DefaultGroup {
		t.Errorf("member 55 = (%d, %t), want (%d, true)", got, ok, model.DefaultGroup)
	}
}

func TestGroupAddRemoveUnsupported(t *testing.T) {
	t.Parallel()

	e := engine.New(store.NewMemory())

	if err := e.AddGroup(1, model.Group{ID: 3, Name: "VIP", Type: model.GroupTypeNormal}); !errors.Is(err, store.ErrUnsupported) {
		t.Errorf("AddGroup error = %v, want ErrUnsupported", err)
	}
	if err := e.RemoveGroup(1, 3); !errors.Is(err, store.ErrUnsupported) {
		t.Errorf("RemoveGroup error = %v, want ErrUnsupported", err)
	}
}

func TestIntakeValidation(t *testing.T) {
	t.Parallel()

	e := engine.New(store.NewMemory())

	if err := e.AddAttribute(1, "x", "v"); err == nil {
		t.Error("AddAttribute accepted a too-short key")
	}
	if err := e.ClearAttribute(1, "no spaces allowed"); err == nil {
		t.Error("ClearAttribute accepted a malformed key")
	}
	if err := e.UpdateDetails(1, model.ChannelDetails{Name: "", Owner: 1}); err == nil {
		t.Error("UpdateDetails accepted an empty name")
	}
	if err := e.UpdateGroup(1, model.Group{ID: 3, Name: "", Type: model.GroupTypeNormal}); err == nil {
		t.Error("UpdateGroup accepted an empty name")
	}
}

func TestLifecyclePassthrough(t *testing.T) {
	t.Parallel()

	backend := store.NewMemory()
	e := engine.New(backend)
	ch := newTestChannel(t, backend, e)

	details, err := e.ChannelDetails(ch)
	if err != nil {
		t.Fatalf("ChannelDetails: %v", err)
	}
	if details.Name != "General" {
		t.Errorf("details name = %q, want %q", details.Name, "General")
	}

	if err := e.RemoveChannel(ch); err != nil {
		t.Fatalf("RemoveChannel: %v", err)
	}
	if _, err := e.ChannelDetails(ch); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ChannelDetails after removal = %v, want ErrNotFound", err)
	}
	if err := e.RemoveChannel(ch); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second RemoveChannel = %v, want ErrNotFound", err)
	}
}
