package schema

// RegisterKernel registers the small, stable kernel of node and edge types
// every deployment carries: the generic entities, the Document lifecycle
// node, and the reader-specific families the extractors are grounded on
// (compose, reverse-proxy, code hosting, mail, network gear). Chunk is
// deliberately NOT registered here: chunks are persisted only in the
// relational store and the vector store, never as a graph node.
func RegisterKernel(r *Registry) error {
	nodeTypes := []NodeType{
		{Tag: "Person", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
			{Name: "email", Type: ValueString},
		}},
		{Tag: "Organization", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
		}},
		{Tag: "Place", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
		}},
		{Tag: "Event", NaturalKey: []string{"name", "occurred_at"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
			{Name: "occurred_at", Type: ValueTimestamp},
		}},
		{Tag: "File", NaturalKey: []string{"path"}, Properties: []PropertyField{
			{Name: "path", Type: ValueString, Required: true},
		}},
		{Tag: "Document", NaturalKey: []string{"doc_id"}, Properties: []PropertyField{
			{Name: "doc_id", Type: ValueString, Required: true},
			{Name: "source_type", Type: ValueString, Required: true},
			{Name: "source_url", Type: ValueString},
			{Name: "content_hash", Type: ValueString, Required: true},
			{Name: "ingested_at", Type: ValueTimestamp, Required: true},
			{Name: "extraction_state", Type: ValueString, Required: true},
		}},

		// Docker Compose family.
		{Tag: "Container", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
			{Name: "image", Type: ValueString},
		}},
		{Tag: "Service", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
			{Name: "port", Type: ValueInt},
		}},
		{Tag: "Network", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
		}},
		{Tag: "Volume", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
		}},

		// Reverse-proxy family.
		{Tag: "ReverseProxy", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
		}},
		{Tag: "Route", NaturalKey: []string{"host", "path"}, Properties: []PropertyField{
			{Name: "host", Type: ValueString, Required: true},
			{Name: "path", Type: ValueString},
		}},
		{Tag: "Upstream", NaturalKey: []string{"host", "port"}, Properties: []PropertyField{
			{Name: "host", Type: ValueString, Required: true},
			{Name: "port", Type: ValueInt},
		}},
		{Tag: "Host", NaturalKey: []string{"fqdn"}, Properties: []PropertyField{
			{Name: "fqdn", Type: ValueString, Required: true},
		}},
		{Tag: "IP", NaturalKey: []string{"address"}, Properties: []PropertyField{
			{Name: "address", Type: ValueString, Required: true},
		}},

		// Code hosting family.
		{Tag: "Repository", NaturalKey: []string{"full_name"}, Properties: []PropertyField{
			{Name: "full_name", Type: ValueString, Required: true},
		}},
		{Tag: "Issue", NaturalKey: []string{"repo", "number"}, Properties: []PropertyField{
			{Name: "repo", Type: ValueString, Required: true},
			{Name: "number", Type: ValueInt, Required: true},
		}},
		{Tag: "Commit", NaturalKey: []string{"sha"}, Properties: []PropertyField{
			{Name: "sha", Type: ValueString, Required: true},
		}},

		// Mail family.
		{Tag: "Email", NaturalKey: []string{"message_id"}, Properties: []PropertyField{
			{Name: "message_id", Type: ValueString, Required: true},
		}},
		{Tag: "Thread", NaturalKey: []string{"thread_id"}, Properties: []PropertyField{
			{Name: "thread_id", Type: ValueString, Required: true},
		}},
		{Tag: "Label", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
		}},

		// Network gear family.
		{Tag: "Device", NaturalKey: []string{"name"}, Properties: []PropertyField{
			{Name: "name", Type: ValueString, Required: true},
		}},
		{Tag: "Interface", NaturalKey: []string{"device", "name"}, Properties: []PropertyField{
			{Name: "device", Type: ValueString, Required: true},
			{Name: "name", Type: ValueString, Required: true},
		}},
		{Tag: "VLAN", NaturalKey: []string{"id"}, Properties: []PropertyField{
			{Name: "id", Type: ValueInt, Required: true},
		}},
		{Tag: "FirewallRule", NaturalKey: []string{"device", "rule_id"}, Properties: []PropertyField{
			{Name: "device", Type: ValueString, Required: true},
			{Name: "rule_id", Type: ValueString, Required: true},
		}},
	}

	for _, nt := range nodeTypes {
		if err := r.RegisterNodeType(nt); err != nil {
			return err
		}
	}

	edgeTypes := []string{
		"DEPENDS_ON", "ROUTES_TO", "BINDS", "RUNS", "MENTIONS", "EXPOSES",
		"CONTAINS", "ATTACHED_TO", "LABELED", "MEMBER_OF", "REFERS_TO",
	}
	// Registration order carries no traversal priority; the bounded
	// graph walk uses EdgeTraversalPriority below.
	for _, tag := range edgeTypes {
		if err := r.RegisterEdgeType(EdgeType{Tag: tag, ConfidenceThreshold: 0.70}); err != nil {
			return err
		}
	}
	return nil
}

// EdgeTraversalPriority is the fixed edge-type order the retriever's bounded graph
// expansion uses when per-hop node budget forces a choice among candidates.
var EdgeTraversalPriority = []string{"DEPENDS_ON", "ROUTES_TO", "BINDS", "RUNS", "MENTIONS"}
