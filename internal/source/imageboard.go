package source

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"feedwatch/internal/fetcher"
	"feedwatch/internal/model"
)

// BoardURLs are the base URLs of an imageboard's read-only JSON API, its
// thread pages and its media host.
type BoardURLs struct {
	API   string
	Web   string
	Media string
}

var backReference = regexp.MustCompile(`>>(\d+)`)

type rawPost struct {
	No       int64  `json:"no"`
	Name     string `json:"name"`
	Sub      string `json:"sub"`
	Com      string `json:"com"`
	Filename string `json:"filename"`
	Ext      string `json:"ext"`
	Tim      int64  `json:"tim"`
	Time     int64  `json:"time"`
	Trip     string `json:"trip"`
}

type rawThread struct {
	Posts []rawPost `json:"posts"`
}

type rawCatalogPage struct {
	Page    int `json:"page"`
	Threads []struct {
		No int64 `json:"no"`
	} `json:"threads"`
}

type rawIndexPage struct {
	Threads []rawThread `json:"threads"`
}

type rawBoardList struct {
	Boards []struct {
		Board string `json:"board"`
	} `json:"boards"`
}

// board is shared by the catalog and front page clients.
type board struct {
	fetcher *fetcher.Fetcher
	urls    BoardURLs
}

func (b board) postItem(kind model.SourceKind, boardName string, threadNo int64, threadSubject string, p rawPost) model.Item {
	item := model.Item{
		ID:            boardName + "/" + strconv.FormatInt(p.No, 10),
		Kind:          kind,
		SourceID:      boardName,
		URL:           fmt.Sprintf("%s/%s/thread/%d#p%d", b.urls.Web, boardName, threadNo, p.No),
		Title:         PlainText(p.Sub),
		Content:       PlainText(p.Com),
		Author:        p.Name,
		Tripcode:      p.Trip,
		ThreadSubject: threadSubject,
		IsRoot:        p.No == threadNo,
		PublishedAt:   time.Unix(p.Time, 0).UTC(),
	}
	if p.Ext != "" {
		item.Filename = p.Filename + p.Ext
		item.FileURL = fmt.Sprintf("%s/%s/%d%s", b.urls.Media, boardName, p.Tim, p.Ext)
	}
	return item
}

// Boards lists the board names the API serves.
func (b board) Boards(ctx context.Context) ([]string, error) {
	var list rawBoardList
	if err := b.fetcher.GetJSON(ctx, b.urls.API+"/boards.json", &list); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Boards))
	for _, entry := range list.Boards {
		names = append(names, entry.Board)
	}
	return names, nil
}

// Catalog lists every post of every live thread on a board and counts, for
// each post, how many other posts in its thread reference it.
type Catalog struct {
	board
	log *slog.Logger
}

// NewCatalog creates a catalog source. All requests go through f, so its
// interval bounds the request rate to the board API.
func NewCatalog(f *fetcher.Fetcher, urls BoardURLs, log *slog.Logger) *Catalog {
	return &Catalog{board: board{fetcher: f, urls: urls}, log: log}
}

// Kind implements Source.
func (c *Catalog) Kind() model.SourceKind { return model.KindBoard }

// List implements Source. A thread that fails to load (for example because
// it was pruned after the catalog was read) is skipped.
func (c *Catalog) List(ctx context.Context, boardName string) ([]model.Item, error) {
	var pages []rawCatalogPage
	if err := c.fetcher.GetJSON(ctx, fmt.Sprintf("%s/%s/catalog.json", c.urls.API, boardName), &pages); err != nil {
		return nil, err
	}

	var items []model.Item
	for _, page := range pages {
		for _, t := range page.Threads {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			var thread rawThread
			url := fmt.Sprintf("%s/%s/thread/%d.json", c.urls.API, boardName, t.No)
			if err := c.fetcher.GetJSON(ctx, url, &thread); err != nil {
				c.log.Warn("fetch thread", "board", boardName, "thread", t.No, "error", err)
				continue
			}
			items = append(items, c.threadItems(boardName, t.No, thread.Posts)...)
		}
	}
	return items, nil
}

func (c *Catalog) threadItems(boardName string, threadNo int64, posts []rawPost) []model.Item {
	var threadSubject string
	if len(posts) > 0 {
		threadSubject = PlainText(posts[0].Sub)
	}

	items := make([]model.Item, len(posts))
	for i, p := range posts {
		items[i] = c.postItem(model.KindBoard, boardName, threadNo, threadSubject, p)
	}

	counts := CountReferences(items, boardName)
	for i := range items {
		n := counts[items[i].ID]
		items[i].Engagement = &n
	}
	return items
}

// CountReferences returns, per item ID, how many other items reference it
// with a ">>no" back-link in their content. A post referencing the same
// target several times counts once.
func CountReferences(items []model.Item, boardName string) map[string]int {
	counts := make(map[string]int, len(items))
	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}

	for _, item := range items {
		seen := make(map[string]bool)
		for _, m := range backReference.FindAllStringSubmatch(item.Content, -1) {
			target := boardName + "/" + m[1]
			if target == item.ID || seen[target] || !known[target] {
				continue
			}
			seen[target] = true
			counts[target]++
		}
	}
	return counts
}

// FrontPage lists the posts shown on a board's first index page: each
// thread's opening post and its latest replies. It makes a single request
// per poll and does not count references.
type FrontPage struct {
	board
}

// NewFrontPage creates a front page source.
func NewFrontPage(f *fetcher.Fetcher, urls BoardURLs) *FrontPage {
	return &FrontPage{board: board{fetcher: f, urls: urls}}
}

// Kind implements Source.
func (p *FrontPage) Kind() model.SourceKind { return model.KindFrontPage }

// List implements Source.
func (p *FrontPage) List(ctx context.Context, boardName string) ([]model.Item, error) {
	var page rawIndexPage
	if err := p.fetcher.GetJSON(ctx, fmt.Sprintf("%s/%s/1.json", p.urls.API, boardName), &page); err != nil {
		return nil, err
	}

	var items []model.Item
	for _, thread := range page.Threads {
		if len(thread.Posts) == 0 {
			continue
		}
		op := thread.Posts[0]
		threadSubject := PlainText(op.Sub)
		for _, post := range thread.Posts {
			items = append(items, p.postItem(model.KindFrontPage, boardName, op.No, threadSubject, post))
		}
	}
	return items, nil
}

// NormalizeBoard trims slashes and whitespace from a board name ("/g/" -> "g").
func NormalizeBoard(name string) string {
	return strings.Trim(strings.TrimSpace(name), "/")
}
