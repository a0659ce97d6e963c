package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const indent = "    "

// FetchSummary is everything printed after a fetch run.
type FetchSummary struct {
	Tally         FetchTally
	Passes        int
	Exhausted     bool
	Elapsed       time.Duration
	UniqueRecords int
}

// ExtractSummary is everything printed after an extraction run.
type ExtractSummary struct {
	Tally         ExtractTally
	Elapsed       time.Duration
	UniqueRecords int
}

// WriteFetchSummary renders s in the corpus tooling's report layout.
func WriteFetchSummary(w io.Writer, s FetchSummary) error {
	var b strings.Builder
	writeTiming(&b, s.Elapsed)
	fmt.Fprintf(&b, "%sTime spent on HTTP requests: %s or %.2f%%.\n",
		indent, formatDuration(s.Tally.RequestTime), share(s.Tally.RequestTime, s.Elapsed))
	fmt.Fprintf(&b, "%sTime spent saving to disk: %s or %.2f%%.\n",
		indent, formatDuration(s.Tally.SaveTime), share(s.Tally.SaveTime, s.Elapsed))

	b.WriteString("Links and pages\n")
	fmt.Fprintf(&b, "%s%d/%d pages = (%d%%) stored to disk.\n",
		indent, s.Tally.Saved, s.Tally.Attempted, Percentage(s.Tally.Saved, s.Tally.Attempted))
	fmt.Fprintf(&b, "%s%d fetch passes.\n", indent, s.Passes)

	b.WriteString("Errors\n")
	fmt.Fprintf(&b, "%s%d pages discarded.\n", indent, s.Tally.Discarded)
	fmt.Fprintf(&b, "%s%d permanently failed URLs.\n", indent, s.Tally.PermanentFailures)
	fmt.Fprintf(&b, "%s%d store errors.\n", indent, s.Tally.StoreErrors)
	fmt.Fprintf(&b, "%s%d URLErrors.\n", indent, s.Tally.TransportErrors)
	fmt.Fprintf(&b, "%s%d/%d = (%d%%) error rate.\n",
		indent, s.Tally.Failures(), s.Tally.Attempted, Percentage(s.Tally.Failures(), s.Tally.Attempted))
	if s.Tally.TransportErrors > 0 {
		fmt.Fprintf(&b, "%sConsider running again until there are no more URLErrors.\n", indent)
	}
	if s.Exhausted {
		fmt.Fprintf(&b, "%sStopped at the pass limit with URLErrors remaining.\n", indent)
	}
	fmt.Fprintf(&b, "%d unique records in database\n", s.UniqueRecords)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteExtractSummary renders s in the corpus tooling's report layout.
func WriteExtractSummary(w io.Writer, s ExtractSummary) error {
	var b strings.Builder
	writeTiming(&b, s.Elapsed)

	t := s.Tally
	prospective := t.Crawled + t.NoLinks
	b.WriteString("Links and pages\n")
	fmt.Fprintf(&b, "%s%d links added this run.\n", indent, t.LinksAdded)
	fmt.Fprintf(&b, "%s%d non-unique links ignored.\n", indent, t.Duplicates)
	fmt.Fprintf(&b, "%s%d/%d = (%d%%) pages successfully scraped for links.\n",
		indent, t.Crawled, prospective, Percentage(t.Crawled, prospective))

	b.WriteString("Errors\n")
	fmt.Fprintf(&b, "%s%d pages discarded (no unique or usable links found).\n", indent, t.NoLinks)
	fmt.Fprintf(&b, "%s%d unusable links discarded.\n", indent, t.Discarded)
	fmt.Fprintf(&b, "%s%d pages could not be read.\n", indent, t.ParseErrors)
	fmt.Fprintf(&b, "%s%d store errors.\n", indent, t.StoreErrors)
	fmt.Fprintf(&b, "%s%d/%d = (%d%%) error rate.\n",
		indent, t.Failures(), t.Pages, Percentage(t.Failures(), t.Pages))
	fmt.Fprintf(&b, "%d unique records in database\n", s.UniqueRecords)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTiming(b *strings.Builder, elapsed time.Duration) {
	b.WriteString("\n\nTiming\n")
	fmt.Fprintf(b, "%sTime elapsed: %s.\n", indent, formatDuration(elapsed))
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

func share(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}
