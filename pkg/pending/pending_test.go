package pending_test

import (
	"testing"

	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/pending"

	"github.com/google/go-cmp/cmp"
)

func TestMemberQueueCoalescing(t *testing.T) {
	t.Parallel()

	type tcase struct {
		ops  func(q *pending.MemberQueue)
		want pending.MemberBatch
	}

	key := pending.MemberKey(7, 55)

	tcases := map[string]tcase{
		"add": {
			ops: func(q *pending.MemberQueue) {
				q.Add(7, 55, model.DefaultGroup)
			},
			want: pending.MemberBatch{
				Additions: map[pending.Key]int64{key: model.DefaultGroup},
				Updates:   map[pending.Key]int64{},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"add_is_idempotent": {
			ops: func(q *pending.MemberQueue) {
				q.Add(7, 55, model.DefaultGroup)
				q.Add(7, 55, model.ModGroup)
			},
			want: pending.MemberBatch{
				Additions: map[pending.Key]int64{key: model.DefaultGroup},
				Updates:   map[pending.Key]int64{},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"add_then_remove_cancels_out": {
			ops: func(q *pending.MemberQueue) {
				q.Add(7, 55, model.DefaultGroup)
				q.Remove(7, 55)
			},
			want: pending.MemberBatch{
				Additions: map[pending.Key]int64{},
				Updates:   map[pending.Key]int64{},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"remove_then_add_becomes_update": {
			ops: func(q *pending.MemberQueue) {
				q.Remove(7, 55)
				q.Add(7, 55, model.DefaultGroup)
			},
			want: pending.MemberBatch{
				Additions: map[pending.Key]int64{},
				Updates:   map[pending.Key]int64{key: model.DefaultGroup},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"update_latest_wins": {
			ops: func(q *pending.MemberQueue) {
				q.Update(7, 55, model.ModGroup)
				q.Update(7, 55, model.AdminGroup)
			},
			want: pending.MemberBatch{
				Additions: map[pending.Key]int64{},
				Updates:   map[pending.Key]int64{key: model.AdminGroup},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"update_then_remove_keeps_removal": {
			ops: func(q *pending.MemberQueue) {
				q.Update(7, 55, model.ModGroup)
				q.Remove(7, 55)
			},
			want: pending.MemberBatch{
				Additions: map[pending.Key]int64{},
				Updates:   map[pending.Key]int64{},
				Removals:  map[pending.Key]struct{}{key: {}},
			},
		},
		"remove_then_update_ignored": {
			ops: func(q *pending.MemberQueue) {
				q.Remove(7, 55)
				q.Update(7, 55, model.ModGroup)
			},
			want: pending.MemberBatch{
				Additions: map[pending.Key]int64{},
				Updates:   map[pending.Key]int64{},
				Removals:  map[pending.Key]struct{}{key: {}},
			},
		},
		"remove_is_idempotent": {
			ops: func(q *pending.MemberQueue) {
				q.Remove(7, 55)
				q.Remove(7, 55)
			},
			want: pending.MemberBatch{
				Additions: map[pending.Key]int64{},
				Updates:   map[pending.Key]int64{},
				Removals:  map[pending.Key]struct{}{key: {}},
			},
		},
		"distinct_keys_do_not_interact": {
			ops: func(q *pending.MemberQueue) {
				q.Add(7, 55, model.DefaultGroup)
				q.Remove(7, 56)
				q.Remove(8, 55)
			},
			want: pending.MemberBatch{
				Additions: map[pending.Key]int64{key: model.DefaultGroup},
				Updates:   map[pending.Key]int64{},
				Removals: map[pending.Key]struct{}{
					pending.MemberKey(7, 56): {},
					pending.MemberKey(8, 55): {},
				},
			},
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			q := pending.NewMemberQueue()
			tc.ops(q)
			if diff := cmp.Diff(tc.want, q.Snapshot()); diff != "" {
				t.Errorf("queue state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemberQueueSnapshotClears(t *testing.T) {
	t.Parallel()

	q := pending.NewMemberQueue()
	q.Add(1, 2, model.DefaultGroup)
	q.Update(1, 3, model.ModGroup)
	q.Remove(1, 4)

	if q.Snapshot().Empty() {
		t.Fatal("first snapshot should carry the queued operations")
	}
	if !q.Snapshot().Empty() {
		t.Error("second snapshot should be empty")
	}
}

func TestBanQueueCoalescing(t *testing.T) {
	t.Parallel()

	type tcase struct {
		ops  func(q *pending.BanQueue)
		want pending.BanBatch
	}

	key := pending.MemberKey(7, 55)

	tcases := map[string]tcase{
		"add": {
			ops: func(q *pending.BanQueue) { q.Add(7, 55) },
			want: pending.BanBatch{
				Additions: map[pending.Key]struct{}{key: {}},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"add_then_remove_cancels_out": {
			ops: func(q *pending.BanQueue) {
				q.Add(7, 55)
				q.Remove(7, 55)
			},
			want: pending.BanBatch{
				Additions: map[pending.Key]struct{}{},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"remove_then_add_cancels_out": {
			ops: func(q *pending.BanQueue) {
				q.Remove(7, 55)
				q.Add(7, 55)
			},
			want: pending.BanBatch{
				Additions: map[pending.Key]struct{}{},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"add_is_idempotent": {
			ops: func(q *pending.BanQueue) {
				q.Add(7, 55)
				q.Add(7, 55)
			},
			want: pending.BanBatch{
				Additions: map[pending.Key]struct{}{key: {}},
				Removals:  map[pending.Key]struct{}{},
			},
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			q := pending.NewBanQueue()
			tc.ops(q)
			if diff := cmp.Diff(tc.want, q.Snapshot()); diff != "" {
				t.Errorf("queue state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAttrQueueCoalescing(t *testing.T) {
	t.Parallel()

	type tcase struct {
		ops  func(q *pending.AttrQueue)
		want pending.AttrBatch
	}

	key := pending.AttrKey(7, "welcome")

	tcases := map[string]tcase{
		"add_then_remove_cancels_out": {
			ops: func(q *pending.AttrQueue) {
				q.Add(7, "welcome", "hello")
				q.Remove(7, "welcome")
			},
			want: pending.AttrBatch{
				Additions: map[pending.Key]string{},
				Updates:   map[pending.Key]string{},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"remove_then_add_becomes_update": {
			ops: func(q *pending.AttrQueue) {
				q.Remove(7, "welcome")
				q.Add(7, "welcome", "hello")
			},
			want: pending.AttrBatch{
				Additions: map[pending.Key]string{},
				Updates:   map[pending.Key]string{key: "hello"},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"update_latest_wins": {
			ops: func(q *pending.AttrQueue) {
				q.Update(7, "welcome", "one")
				q.Update(7, "welcome", "two")
			},
			want: pending.AttrBatch{
				Additions: map[pending.Key]string{},
				Updates:   map[pending.Key]string{key: "two"},
				Removals:  map[pending.Key]struct{}{},
			},
		},
		"update_then_remove_keeps_removal": {
			ops: func(q *pending.AttrQueue) {
				q.Update(7, "welcome", "one")
				q.Remove(7, "welcome")
			},
			want: pending.AttrBatch{
				Additions: map[pending.Key]string{},
				Updates:   map[pending.Key]string{},
				Removals:  map[pending.Key]struct{}{key: {}},
			},
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			q := pending.NewAttrQueue()
			tc.ops(q)
			if diff := cmp.Diff(tc.want, q.Snapshot()); diff != "" {
				t.Errorf("queue state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGroupQueueLatestWins(t *testing.T) {
	t.Parallel()

	q := pending.NewGroupQueue()
	q.Update(model.Group{ChannelID: 7, ID: model.ModGroup, Name: "Mods"})
	q.Update(model.Group{ChannelID: 7, ID: model.ModGroup, Name: "Moderators"})
	q.Update(model.Group{ChannelID: 8, ID: model.ModGroup, Name: "Other"})

	got := q.Snapshot()
	if len(got) != 2 {
		t.Fatalf("snapshot has %d groups, want 2", len(got))
	}
	for _, g := range got {
		if g.ChannelID == 7 && g.Name != "Moderators" {
			t.Errorf("channel 7 group name = %q, want latest update", g.Name)
		}
	}
	if len(q.Snapshot()) != 0 {
		t.Error("second snapshot should be empty")
	}
}

func TestDetailQueueLatestWins(t *testing.T) {
	t.Parallel()

	q := pending.NewDetailQueue()
	q.Sync(7, model.ChannelDetails{ID: 7, Name: "First", Owner: 1})
	q.Sync(7, model.ChannelDetails{ID: 7, Name: "Second", Owner: 1})

	got := q.Snapshot()
	want := map[int64]model.ChannelDetails{7: {ID: 7, Name: "Second", Owner: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("detail snapshot mismatch (-want +got):\n%s", diff)
	}
	if len(q.Snapshot()) != 0 {
		t.Error("second snapshot should be empty")
	}
}
