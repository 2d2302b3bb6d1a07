package pipeline

import (
	"errors"
	"testing"
)

func fourSlideSkeleton() Skeleton {
	return Skeleton{
		Title:    "Distributed Consensus",
		Audience: "engineers",
		Slides: []SkeletonSlide{
			{Order: 1, Title: "Intro", ContentType: "title"},
			{Order: 2, Title: "Paxos", ContentType: "content"},
			{Order: 3, Title: "Raft", ContentType: "content"},
			{Order: 4, Title: "Summary", ContentType: "summary"},
		},
	}
}

func TestApplyModifications(t *testing.T) {
	tests := []struct {
		name       string
		mods       []Modification
		wantTitles []string
		wantErr    bool
	}{
		{
			name:       "remove middle slide renumbers the rest",
			mods:       []Modification{{Action: "remove", Order: 2}},
			wantTitles: []string{"Intro", "Raft", "Summary"},
		},
		{
			name:       "add at position",
			mods:       []Modification{{Action: "add", Order: 2, Title: "History", ContentType: "content"}},
			wantTitles: []string{"Intro", "History", "Paxos", "Raft", "Summary"},
		},
		{
			name:       "add with out-of-range position appends",
			mods:       []Modification{{Action: "add", Order: 42, Title: "Appendix"}},
			wantTitles: []string{"Intro", "Paxos", "Raft", "Summary", "Appendix"},
		},
		{
			name:       "modify retitles in place",
			mods:       []Modification{{Action: "modify", Order: 3, Title: "Raft Deep Dive"}},
			wantTitles: []string{"Intro", "Paxos", "Raft Deep Dive", "Summary"},
		},
		{
			name:       "reorder",
			mods:       []Modification{{Action: "reorder", NewOrder: []int{1, 3, 2, 4}}},
			wantTitles: []string{"Intro", "Raft", "Paxos", "Summary"},
		},
		{
			name: "sequential edits see renumbered orders",
			mods: []Modification{
				{Action: "remove", Order: 1},
				{Action: "remove", Order: 1},
			},
			wantTitles: []string{"Raft", "Summary"},
		},
		{
			name:    "remove unknown order",
			mods:    []Modification{{Action: "remove", Order: 9}},
			wantErr: true,
		},
		{
			name:    "reorder with wrong length",
			mods:    []Modification{{Action: "reorder", NewOrder: []int{1, 2}}},
			wantErr: true,
		},
		{
			name:    "reorder with duplicate position",
			mods:    []Modification{{Action: "reorder", NewOrder: []int{1, 1, 2, 3}}},
			wantErr: true,
		},
		{
			name:    "unknown action",
			mods:    []Modification{{Action: "swap", Order: 1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := fourSlideSkeleton()
			out, err := ApplyModifications(in, tt.mods)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(out.Slides) != len(tt.wantTitles) {
				t.Fatalf("got %d slides, want %d", len(out.Slides), len(tt.wantTitles))
			}
			for i, s := range out.Slides {
				if s.Title != tt.wantTitles[i] {
					t.Errorf("slide %d title = %q, want %q", i, s.Title, tt.wantTitles[i])
				}
				if s.Order != i+1 {
					t.Errorf("slide %d order = %d, want contiguous %d", i, s.Order, i+1)
				}
			}

			// Input skeleton must be untouched.
			if len(in.Slides) != 4 || in.Slides[1].Title != "Paxos" || in.Slides[1].Order != 2 {
				t.Error("input skeleton was mutated")
			}
		})
	}
}

func TestApplyModificationsIsDeterministic(t *testing.T) {
	mods := []Modification{
		{Action: "remove", Order: 2},
		{Action: "add", Order: 1, Title: "Cover"},
	}
	a, err1 := ApplyModifications(fourSlideSkeleton(), mods)
	b, err2 := ApplyModifications(fourSlideSkeleton(), mods)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if len(a.Slides) != len(b.Slides) {
		t.Fatal("same edits on same skeleton gave different slide counts")
	}
	for i := range a.Slides {
		if a.Slides[i] != b.Slides[i] {
			t.Errorf("slide %d differs between identical applications", i)
		}
	}
}

func TestValidateRendered(t *testing.T) {
	valid := func() *RenderedOutput {
		return &RenderedOutput{
			Title:   "Deck",
			ThemeID: "mono",
			Slides: []RenderedSlide{
				{Order: 1, Title: "Intro", HTML: "<section/>"},
				{Order: 2, Title: "Body", HTML: "<section/>"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*RenderedOutput) *RenderedOutput
		wantErr bool
	}{
		{"valid output", func(o *RenderedOutput) *RenderedOutput { return o }, false},
		{"nil output", func(o *RenderedOutput) *RenderedOutput { return nil }, true},
		{"missing title", func(o *RenderedOutput) *RenderedOutput { o.Title = ""; return o }, true},
		{"missing theme", func(o *RenderedOutput) *RenderedOutput { o.ThemeID = ""; return o }, true},
		{"no slides", func(o *RenderedOutput) *RenderedOutput { o.Slides = nil; return o }, true},
		{"gap in ordering", func(o *RenderedOutput) *RenderedOutput { o.Slides[1].Order = 3; return o }, true},
		{"empty html", func(o *RenderedOutput) *RenderedOutput { o.Slides[0].HTML = ""; return o }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRendered(tt.mutate(valid()))
			if tt.wantErr {
				var se *SchemaError
				if !errors.As(err, &se) {
					t.Fatalf("expected SchemaError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
