// Package catalog is the searchable registry of capabilities the gateway
// can reach.
//
// Definitions are loaded from YAML files, indexed for BM25 ranking with
// tooldiscovery, and looked up by name to retrieve their input schema.
// When BM25 finds nothing, Search falls back to a term-overlap scan and
// says so in the response.
//
// A file holds either one definition:
//
//	name: query-docs
//	server: context7
//	category: knowledge
//	description: Query library documentation
//	inputSchema:
//	  type: object
//	example: await context7["query-docs"]({libraryId: "/vercel/next.js"})
//
// or a list under a top-level tools key.
package catalog
