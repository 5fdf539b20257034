package graph

import (
	"repograph/internal/detect/dependencies"
	"repograph/internal/detect/services"
)

// FromDependencies converts merged dependency findings into assembly records.
func FromDependencies(deps []*dependencies.Dependency) []DependencyRecord {
	out := make([]DependencyRecord, 0, len(deps))
	for _, d := range deps {
		if d == nil {
			continue
		}
		out = append(out, DependencyRecord{
			Name:           d.Name,
			Version:        d.Version,
			PackageManager: string(d.PackageManager),
			IsDev:          d.IsDev,
			IsOptional:     d.IsOptional,
		})
	}
	return out
}

// FromServices converts merged service findings into assembly records.
func FromServices(svcs []*services.Service) []ServiceRecord {
	out := make([]ServiceRecord, 0, len(svcs))
	for _, s := range svcs {
		if s == nil {
			continue
		}
		out = append(out, ServiceRecord{
			Name:          s.Name,
			Provider:      s.Provider,
			ServiceType:   string(s.Type),
			Configuration: s.Configuration,
			FilePath:      s.OriginFile,
			LineNumber:    s.OriginLine,
			Confidence:    s.Confidence,
			RelatedTo:     s.RelatedDependencies,
		})
	}
	return out
}
