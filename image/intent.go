package image

// Resolution is the request shape derived from two tagged image slots.
type Resolution struct {
	Primary  *ImageRef
	Controls []*ImageRef
	Styles   []*ImageRef
}

// ResolveIntent decides which image is the primary subject and which ones
// become control or style conditioning inputs.
//
// The rules run in a fixed order and later rules may add to lists filled by
// earlier ones:
//
//  1. primary defaults to base.Image
//  2. base tagged style_transfer_target goes to styles, reference_object to controls
//  3. secondary tagged style_transfer_target goes to styles; reference_object,
//     object_replacement or image_merge_secondary go to controls
//  4. secondary tagged image_merge_primary takes over as primary, and base
//     joins controls unless it is style_transfer_target or image_merge_primary
//  5. otherwise base tagged image_merge_secondary joins controls
//  6. controls and styles are deduplicated by byte identity, first seen wins
//
// Rule 2 can leave base.Image as primary while also listed in styles or
// controls. That overlap is intentional.
//
// A secondary slot without an image counts as absent.
func ResolveIntent(base ImageSlot, secondary *ImageSlot) Resolution {
	if secondary != nil && secondary.Image == nil {
		secondary = nil
	}

	var res Resolution
	res.Primary = base.Image

	switch base.Intent {
	case IntentStyleTransferTarget:
		res.Styles = appendImage(res.Styles, base.Image)
	case IntentReferenceObject:
		res.Controls = appendImage(res.Controls, base.Image)
	}

	if secondary != nil {
		switch secondary.Intent {
		case IntentStyleTransferTarget:
			res.Styles = appendImage(res.Styles, secondary.Image)
		case IntentReferenceObject, IntentObjectReplacement, IntentImageMergeSecondary:
			res.Controls = appendImage(res.Controls, secondary.Image)
		}
	}

	if secondary != nil && secondary.Intent == IntentImageMergePrimary {
		res.Primary = secondary.Image
		if base.Intent != IntentStyleTransferTarget && base.Intent != IntentImageMergePrimary {
			res.Controls = appendImage(res.Controls, base.Image)
		}
	} else if base.Intent == IntentImageMergeSecondary {
		res.Controls = appendImage(res.Controls, base.Image)
	}

	res.Controls = dedupImages(res.Controls)
	res.Styles = dedupImages(res.Styles)

	// primary must never sit in both lists; only reachable with byte-identical slots
	if containsImage(res.Styles, res.Primary) && containsImage(res.Controls, res.Primary) {
		res.Controls = removeImage(res.Controls, res.Primary)
	}
	return res
}

func appendImage(list []*ImageRef, img *ImageRef) []*ImageRef {
	if img == nil {
		return list
	}
	return append(list, img)
}

func dedupImages(list []*ImageRef) []*ImageRef {
	if len(list) < 2 {
		return list
	}
	seen := make(map[[32]byte]struct{}, len(list))
	out := list[:0:0]
	for _, img := range list {
		if _, ok := seen[img.digest]; ok {
			continue
		}
		seen[img.digest] = struct{}{}
		out = append(out, img)
	}
	return out
}

func containsImage(list []*ImageRef, img *ImageRef) bool {
	if img == nil {
		return false
	}
	for _, candidate := range list {
		if candidate.SameBytes(img) {
			return true
		}
	}
	return false
}

func removeImage(list []*ImageRef, img *ImageRef) []*ImageRef {
	out := list[:0:0]
	for _, candidate := range list {
		if !candidate.SameBytes(img) {
			out = append(out, candidate)
		}
	}
	return out
}
