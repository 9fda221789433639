// Command momentctl composes photo moments from the command line and manages
// the moments already committed to the local database.
//
// A typical run ingests a handful of photos, waits for the story, applies a
// refinement and commits:
//
//	momentctl compose --refine "make it shorter" --commit beach/*.jpg
//	momentctl moments list --location harbour
package main
