package search

// PageSize is the fixed number of results per page.
const PageSize = 10

// Thresholds for the page-link window.
const (
	maxUnfoldedPages = 8
	edgeRun          = 6
	aroundCurrent    = 2
)

// PageWindow locates one page within a result list.
type PageWindow struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// PageLink is one entry in the pagination bar. An ellipsis entry is a
// placeholder and carries no page number.
type PageLink struct {
	Number   int  `json:"number,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Active   bool `json:"active,omitempty"`
}

// NewWindow computes the window for total results. A page below 1 is read as
// page 1; a page past the end is kept and yields an empty slice.
func NewWindow(total, page int) PageWindow {
	if page < 1 {
		page = 1
	}
	return PageWindow{
		Page:       page,
		PageSize:   PageSize,
		TotalPages: (total + PageSize - 1) / PageSize,
	}
}

// Bounds returns the [start, end) slice indices of the page within total
// results, both clamped to total.
func (w PageWindow) Bounds(total int) (start, end int) {
	start = (w.Page - 1) * w.PageSize
	if start > total {
		start = total
	}
	end = start + w.PageSize
	if end > total {
		end = total
	}
	return start, end
}

// Prev is the previous page number, or 0 on the first page.
func (w PageWindow) Prev() int {
	if w.Page > 1 {
		return w.Page - 1
	}
	return 0
}

// Next is the next page number, or 0 on or past the last page.
func (w PageWindow) Next() int {
	if w.Page < w.TotalPages {
		return w.Page + 1
	}
	return 0
}

// Links returns the numbered pagination entries. A single page of results
// needs no pagination and returns nil.
//
//	n ≤ 8:       1 2 … n
//	page ≤ 4:    1 2 3 4 5 6 … n
//	page ≥ n-3:  1 … n-5 n-4 n-3 n-2 n-1 n
//	otherwise:   1 … p-2 p-1 p p+1 p+2 … n
func (w PageWindow) Links() []PageLink {
	n := w.TotalPages
	if n <= 1 {
		return nil
	}

	var pages []int
	const gap = -1
	switch {
	case n <= maxUnfoldedPages:
		pages = pageRange(1, n)
	case w.Page <= 4:
		pages = append(pageRange(1, edgeRun), gap, n)
	case w.Page >= n-3:
		pages = append([]int{1, gap}, pageRange(n-edgeRun+1, n)...)
	default:
		pages = append([]int{1, gap}, pageRange(w.Page-aroundCurrent, w.Page+aroundCurrent)...)
		pages = append(pages, gap, n)
	}

	links := make([]PageLink, 0, len(pages))
	for _, p := range pages {
		if p == gap {
			links = append(links, PageLink{Ellipsis: true})
			continue
		}
		links = append(links, PageLink{Number: p, Active: p == w.Page})
	}
	return links
}

func pageRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}
