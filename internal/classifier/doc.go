// Package classifier annotates code chunks with a purpose, business-domain
// tags, technical-pattern tags and a complexity score, driven by a
// configurable rule table.
package classifier
