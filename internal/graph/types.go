package graph

import "errors"

var (
	// ErrUnknownNode is returned when an edge references a node not yet in the graph.
	ErrUnknownNode = errors.New("unknown graph node")
	// ErrSelfLoop is returned for an edge whose endpoints are the same node.
	ErrSelfLoop = errors.New("graph edge is a self-loop")
	// ErrInvalidRecord is returned for input records missing their name.
	ErrInvalidRecord = errors.New("invalid assembly record")
)

// NodeType classifies a node.
type NodeType string

const (
	NodeRepository      NodeType = "Repository"
	NodeDependency      NodeType = "Dependency"
	NodeService         NodeType = "Service"
	NodePackageManager  NodeType = "PackageManager"
	NodeServiceProvider NodeType = "ServiceProvider"
)

// NodeTypes lists every node type in assembly order.
var NodeTypes = []NodeType{NodeRepository, NodePackageManager, NodeDependency, NodeServiceProvider, NodeService}

// EdgeType classifies a directed edge.
type EdgeType string

const (
	EdgeHasDependency      EdgeType = "HasDependency"      // Repository -> Dependency
	EdgeUsesService        EdgeType = "UsesService"        // Repository -> Service
	EdgeUsesPackageManager EdgeType = "UsesPackageManager" // Repository|Dependency -> PackageManager
	EdgeProvidedBy         EdgeType = "ProvidedBy"         // Service -> ServiceProvider
	EdgeDependsOn          EdgeType = "DependsOn"          // Dependency -> Dependency
	EdgeRelatedTo          EdgeType = "RelatedTo"
)

var EdgeTypes = []EdgeType{EdgeHasDependency, EdgeUsesService, EdgeUsesPackageManager, EdgeProvidedBy, EdgeDependsOn, EdgeRelatedTo}

// UnknownProvider is the node name used for empty providers and package managers.
const UnknownProvider = "unknown"

// Node is a vertex of the knowledge graph.
type Node struct {
	ID           string         `json:"id"`
	Type         NodeType       `json:"node_type"`
	Name         string         `json:"name"`
	Properties   map[string]any `json:"properties,omitempty"`
	RepositoryID string         `json:"repository_id,omitempty"`
}

// Edge is a directed relationship between two nodes.
type Edge struct {
	ID         string         `json:"id"`
	Source     string         `json:"source_node_id"`
	Target     string         `json:"target_node_id"`
	Type       EdgeType       `json:"edge_type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Repository identifies the analyzed repository, the root of every graph.
type Repository struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// DependencyRecord is one declared package handed to Assemble.
type DependencyRecord struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	PackageManager string `json:"package_manager"`
	IsDev          bool   `json:"is_dev"`
	IsOptional     bool   `json:"is_optional"`
}

// ServiceRecord is one detected service handed to Assemble.
type ServiceRecord struct {
	Name          string            `json:"name"`
	Provider      string            `json:"provider"`
	ServiceType   string            `json:"service_type"`
	Configuration map[string]string `json:"configuration,omitempty"`
	FilePath      string            `json:"file_path"`
	LineNumber    int               `json:"line_number,omitempty"` // 0 when unknown
	Confidence    float64           `json:"confidence"`
	// RelatedTo names dependencies implementing the service.
	RelatedTo []string `json:"related_to,omitempty"`
}
