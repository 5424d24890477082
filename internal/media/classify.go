package media

// Partition holds the attachments of one message split by kind.
type Partition struct {
	Images []Item
	Audio  []Item
}

// Classify splits items into images and audio by content type prefix,
// preserving input order. Every other content type is dropped.
func Classify(items []Item) Partition {
	var p Partition
	for _, item := range items {
		switch item.Kind() {
		case MediaTypeImage:
			p.Images = append(p.Images, item)
		case MediaTypeAudio:
			p.Audio = append(p.Audio, item)
		}
	}
	return p
}

// References projects items onto their references.
func References(items []Item) []Reference {
	if len(items) == 0 {
		return nil
	}
	refs := make([]Reference, 0, len(items))
	for _, item := range items {
		refs = append(refs, item.Reference())
	}
	return refs
}
