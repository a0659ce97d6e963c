// Package main is the corpus-crawler entrypoint.
//
// A crawl is two commands sharing one frontier store:
//   - fetch downloads the root page, then repeats passes over every pending url
//     until a pass finishes without transient failures or retry.max_passes is hit.
//     Each page is hashed, bzip2-compressed and written to the blob store before
//     its frontier row is stamped.
//   - extract reads every fetched blob that has not been scanned, inserts the
//     links matching site.link_prefix, and marks the blob extracted.
//
// Run them alternately until extract adds no links. seed and stats help with
// bootstrapping and inspecting the frontier.
package main

import "github.com/JakeFAU/corpus-crawler/cmd"

func main() {
	cmd.Execute()
}
