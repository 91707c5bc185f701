// Package qa provides the one-shot question answering tools: general_qa for
// questions without table data and table_qa for lookups and simple
// statistics over an attached table.
package qa
