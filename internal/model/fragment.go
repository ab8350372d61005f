package model

type FragmentKind string

const (
	FragmentText  FragmentKind = "text"
	FragmentError FragmentKind = "error"
)

// Fragment is one unit of streamed generation output. Heterogeneous model
// response shapes are normalized into this union before they reach the
// transport layer.
type Fragment struct {
	Kind FragmentKind `json:"kind"`
	Text string       `json:"text"`
}

func TextFragment(text string) Fragment {
	return Fragment{Kind: FragmentText, Text: text}
}

func ErrorFragment(text string) Fragment {
	return Fragment{Kind: FragmentError, Text: text}
}
