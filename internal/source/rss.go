package source

import (
	"context"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"feedwatch/internal/fetcher"
	"feedwatch/internal/model"
)

const youtubeHost = "www.youtube.com"

// RSS lists the entries of RSS and Atom feeds. The source identifier is
// the feed URL and the item identity is the entry permalink.
type RSS struct {
	fetcher *fetcher.Fetcher
}

// NewRSS creates an RSS source that downloads feeds through f.
func NewRSS(f *fetcher.Fetcher) *RSS {
	return &RSS{fetcher: f}
}

// Kind implements Source.
func (r *RSS) Kind() model.SourceKind { return model.KindRSS }

// Title fetches the feed and returns its title. It doubles as a validity
// check when a subscription is added.
func (r *RSS) Title(ctx context.Context, feedURL string) (string, error) {
	feed, err := r.fetcher.GetFeed(ctx, feedURL)
	if err != nil {
		return "", err
	}
	return feed.Title, nil
}

// List implements Source. Entries without a link are skipped.
func (r *RSS) List(ctx context.Context, feedURL string) ([]model.Item, error) {
	feed, err := r.fetcher.GetFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	items := make([]model.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry.Link == "" {
			continue
		}
		items = append(items, rssItem(feedURL, entry))
	}
	return items, nil
}

func rssItem(feedURL string, entry *gofeed.Item) model.Item {
	item := model.Item{
		ID:       entry.Link,
		Kind:     model.KindRSS,
		SourceID: feedURL,
		URL:      entry.Link,
		Title:    entry.Title,
		IsRoot:   true,
	}
	if entry.Author != nil {
		item.Author = entry.Author.Name
	}
	switch {
	case entry.PublishedParsed != nil:
		item.PublishedAt = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		item.PublishedAt = *entry.UpdatedParsed
	default:
		item.PublishedAt = time.Now().UTC()
	}

	body := entry.Content
	if body == "" {
		body = entry.Description
	}

	if isYouTube(entry.Link) {
		if desc, thumb := mediaGroup(entry.Extensions); desc != "" || thumb != "" {
			item.Content = desc
			if thumb != "" {
				item.Images = []string{thumb}
			}
			if item.Content == "" {
				item.Content = PlainText(body)
			}
			return item
		}
	}

	item.Content = PlainText(body)
	item.Images = ExtractImages(body)
	return item
}

func isYouTube(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Hostname() == youtubeHost
}

// mediaGroup reads media:group/media:description and
// media:group/media:thumbnail@url from a Media RSS extension.
func mediaGroup(exts ext.Extensions) (description, thumbnail string) {
	groups := exts["media"]["group"]
	if len(groups) == 0 {
		return "", ""
	}
	group := groups[0]
	if d := group.Children["description"]; len(d) > 0 {
		description = d[0].Value
	}
	if t := group.Children["thumbnail"]; len(t) > 0 {
		thumbnail = t[0].Attrs["url"]
	}
	return description, thumbnail
}
