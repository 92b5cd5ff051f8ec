package config

import "fmt"

// ExporterVersion is filled from build flags.
type ExporterVersion struct {
	GitCommit, GitRef, Version string
}

func (a *ExporterVersion) String() string {
	return fmt.Sprintf("GitCommit=%q GitRef=%q Version=%q", a.GitCommit, a.GitRef, a.Version)
}
