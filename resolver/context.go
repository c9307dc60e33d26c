package resolver

// Peers reference the ActivityStreams and security contexts on nearly
// every document. The terms we consume are preloaded into the document
// loader so resolution never depends on w3.org being reachable.

const (
	activityStreamsContextURL = "https://www.w3.org/ns/activitystreams"
	securityContextURL        = "https://w3id.org/security/v1"
)

func activityStreamsTerms() map[string]interface{} {
	const as = "https://www.w3.org/ns/activitystreams#"
	idTerm := func(iri string) map[string]interface{} {
		return map[string]interface{}{"@id": iri, "@type": "@id"}
	}

	return map[string]interface{}{
		"id":   "@id",
		"type": "@type",

		"actor":        idTerm(as + "actor"),
		"object":       idTerm(as + "object"),
		"target":       idTerm(as + "target"),
		"to":           idTerm(as + "to"),
		"cc":           idTerm(as + "cc"),
		"audience":     idTerm(as + "audience"),
		"attributedTo": idTerm(as + "attributedTo"),
		"inReplyTo":    idTerm(as + "inReplyTo"),
		"inbox":        idTerm("http://www.w3.org/ns/ldp#inbox"),
		"outbox":       idTerm(as + "outbox"),
		"followers":    idTerm(as + "followers"),
		"endpoints":    idTerm(as + "endpoints"),
		"sharedInbox":  idTerm(as + "sharedInbox"),
		"url":          idTerm(as + "url"),

		"preferredUsername": as + "preferredUsername",
		"name":              as + "name",
		"content":           as + "content",
		"summary":           as + "summary",
		"published": map[string]interface{}{
			"@id":   as + "published",
			"@type": "http://www.w3.org/2001/XMLSchema#dateTime",
		},
		"updated": map[string]interface{}{
			"@id":   as + "updated",
			"@type": "http://www.w3.org/2001/XMLSchema#dateTime",
		},

		"Person":      as + "Person",
		"Group":       as + "Group",
		"Service":     as + "Service",
		"Application": as + "Application",
		"Page":        as + "Page",
		"Note":        as + "Note",
		"Article":     as + "Article",
		"Tombstone":   as + "Tombstone",
	}
}

func securityTerms() map[string]interface{} {
	const sec = "https://w3id.org/security#"

	return map[string]interface{}{
		"id":   "@id",
		"type": "@type",
		"publicKey": map[string]interface{}{
			"@id":   sec + "publicKey",
			"@type": "@id",
		},
		"owner": map[string]interface{}{
			"@id":   sec + "owner",
			"@type": "@id",
		},
		"publicKeyPem": sec + "publicKeyPem",
		"Key":          sec + "Key",
	}
}

// compactionContext is the context fetched documents are compacted
// against before typed decoding.
func compactionContext() map[string]interface{} {
	terms := activityStreamsTerms()
	for k, v := range securityTerms() {
		terms[k] = v
	}
	return map[string]interface{}{"@context": terms}
}
