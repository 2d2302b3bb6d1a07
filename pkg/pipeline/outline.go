package pipeline

import "fmt"

// ApplyModifications folds a user's edit list into the skeleton and returns
// a new skeleton with contiguous 1-based ordering. It is a pure function:
// the input skeleton is never mutated, and applying the same modifications
// to the same skeleton always yields the same result.
func ApplyModifications(skeleton Skeleton, mods []Modification) (Skeleton, error) {
	out := skeleton
	out.Slides = append([]SkeletonSlide(nil), skeleton.Slides...)

	for _, mod := range mods {
		var err error
		switch mod.Action {
		case "add":
			out.Slides, err = addSlide(out.Slides, mod)
		case "remove":
			out.Slides, err = removeSlide(out.Slides, mod.Order)
		case "modify":
			out.Slides, err = modifySlide(out.Slides, mod)
		case "reorder":
			out.Slides, err = reorderSlides(out.Slides, mod.NewOrder)
		default:
			err = fmt.Errorf("unknown modification action %q", mod.Action)
		}
		if err != nil {
			return Skeleton{}, err
		}
		renumber(out.Slides)
	}
	return out, nil
}

func addSlide(slides []SkeletonSlide, mod Modification) ([]SkeletonSlide, error) {
	pos := mod.Order
	if pos < 1 || pos > len(slides)+1 {
		pos = len(slides) + 1
	}
	contentType := mod.ContentType
	if contentType == "" {
		contentType = "content"
	}
	slide := SkeletonSlide{
		Title:       mod.Title,
		Description: mod.Description,
		ContentType: contentType,
	}
	out := make([]SkeletonSlide, 0, len(slides)+1)
	out = append(out, slides[:pos-1]...)
	out = append(out, slide)
	out = append(out, slides[pos-1:]...)
	return out, nil
}

func removeSlide(slides []SkeletonSlide, order int) ([]SkeletonSlide, error) {
	for i, s := range slides {
		if s.Order == order {
			return append(append([]SkeletonSlide(nil), slides[:i]...), slides[i+1:]...), nil
		}
	}
	return nil, fmt.Errorf("remove: no slide with order %d", order)
}

func modifySlide(slides []SkeletonSlide, mod Modification) ([]SkeletonSlide, error) {
	for i, s := range slides {
		if s.Order == mod.Order {
			if mod.Title != "" {
				s.Title = mod.Title
			}
			if mod.Description != "" {
				s.Description = mod.Description
			}
			if mod.ContentType != "" {
				s.ContentType = mod.ContentType
			}
			out := append([]SkeletonSlide(nil), slides...)
			out[i] = s
			return out, nil
		}
	}
	return nil, fmt.Errorf("modify: no slide with order %d", mod.Order)
}

func reorderSlides(slides []SkeletonSlide, newOrder []int) ([]SkeletonSlide, error) {
	if len(newOrder) != len(slides) {
		return nil, fmt.Errorf("reorder: got %d positions for %d slides", len(newOrder), len(slides))
	}
	byOrder := make(map[int]SkeletonSlide, len(slides))
	for _, s := range slides {
		byOrder[s.Order] = s
	}
	out := make([]SkeletonSlide, 0, len(slides))
	seen := make(map[int]bool, len(newOrder))
	for _, o := range newOrder {
		s, ok := byOrder[o]
		if !ok || seen[o] {
			return nil, fmt.Errorf("reorder: invalid position %d", o)
		}
		seen[o] = true
		out = append(out, s)
	}
	return out, nil
}

// describeModification turns one outline edit into a negotiated constraint
// sentence for the outliner to honor on regeneration.
func describeModification(mod Modification) string {
	switch mod.Action {
	case "add":
		return fmt.Sprintf("Add a %s slide titled %q at position %d.", mod.ContentType, mod.Title, mod.Order)
	case "remove":
		return fmt.Sprintf("Drop the slide at position %d.", mod.Order)
	case "modify":
		return fmt.Sprintf("Rework the slide at position %d (title %q, description %q).", mod.Order, mod.Title, mod.Description)
	case "reorder":
		return fmt.Sprintf("Order the slides as %v.", mod.NewOrder)
	}
	return ""
}

func renumber(slides []SkeletonSlide) {
	for i := range slides {
		slides[i].Order = i + 1
	}
}

// ValidateRendered is the structural schema gate between assembly and QA.
// Violations are terminal for the stage.
func ValidateRendered(output *RenderedOutput) error {
	var violations []string
	if output == nil {
		return &SchemaError{Stage: StageAssembler, Violations: []string{"output is nil"}}
	}
	if output.Title == "" {
		violations = append(violations, "title is empty")
	}
	if output.ThemeID == "" {
		violations = append(violations, "theme_id is empty")
	}
	if len(output.Slides) == 0 {
		violations = append(violations, "no slides")
	}
	for i, s := range output.Slides {
		if s.Order != i+1 {
			violations = append(violations, fmt.Sprintf("slide %d has order %d, want %d", i, s.Order, i+1))
		}
		if s.HTML == "" {
			violations = append(violations, fmt.Sprintf("slide %d has empty html", s.Order))
		}
		if s.Title == "" {
			violations = append(violations, fmt.Sprintf("slide %d has empty title", s.Order))
		}
	}
	if len(violations) > 0 {
		return &SchemaError{Stage: StageAssembler, Violations: violations}
	}
	return nil
}
