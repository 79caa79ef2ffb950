package memory

import (
	"log"
	"strings"
)

// Retriever assembles the memory context block for one pipeline run.
type Retriever struct {
	store *Store
	specs []RetrievalSpec
}

func NewRetriever(store *Store) *Retriever {
	return &Retriever{store: store, specs: DefaultRetrievalSpecs()}
}

// Context retrieves the partition's memories relevant to text and renders
// them as a prompt block. An empty string means nothing relevant was found;
// retrieval errors are logged and degrade to that same empty result, a
// reply without memory beats no reply.
func (r *Retriever) Context(key Key, text string) string {
	var sections []renderedSection
	for _, spec := range r.specs {
		q := ScopedQuery{
			ActorID:   key.ActorID,
			Namespace: spec.Namespace,
			Text:      text,
			Limit:     spec.Limit,
			MinScore:  spec.MinScore,
		}
		if spec.Namespace == NamespaceSummaries {
			q.SessionID = key.SessionID
		}

		records, err := r.store.Retrieve(q)
		if err != nil {
			log.Printf("[memory] retrieve %s error: %v", spec.Namespace, err)
			continue
		}
		if len(records) == 0 {
			continue
		}
		sections = append(sections, renderedSection{Namespace: spec.Namespace, Records: records})
	}

	return formatSections(sections)
}

type renderedSection struct {
	Namespace string
	Records   []Record
}

func formatSections(sections []renderedSection) string {
	if len(sections) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("[Relevant Memory]\n")
	for _, sec := range sections {
		sb.WriteString("## " + sectionTitle(sec.Namespace) + "\n")
		for _, rec := range sec.Records {
			sb.WriteString("- " + strings.TrimSpace(rec.Content) + "\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

func sectionTitle(namespace string) string {
	switch namespace {
	case NamespacePreferences:
		return "Channel preferences"
	case NamespaceFacts:
		return "Known facts"
	case NamespaceSummaries:
		return "Earlier in this thread"
	default:
		return namespace
	}
}
