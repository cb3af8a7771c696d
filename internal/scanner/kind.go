package scanner

import (
	"path/filepath"
	"strings"
)

// Kind classifies a file by what the analysis pipeline can do with it.
type Kind int

const (
	KindOther Kind = iota
	KindSource
	KindHeader
	KindAssembly
	KindPreprocessed
)

// kindMap maps lowercased file extensions to kinds.
var kindMap = map[string]Kind{
	".c":   KindSource,
	".h":   KindHeader,
	".i":   KindPreprocessed,
	".s":   KindAssembly,
	".asm": KindAssembly,
}

// KindOf returns the classification for a file name.
func KindOf(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if k, ok := kindMap[ext]; ok {
		return k
	}
	return KindOther
}

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindHeader:
		return "header"
	case KindAssembly:
		return "assembly"
	case KindPreprocessed:
		return "preprocessed"
	default:
		return "other"
	}
}
