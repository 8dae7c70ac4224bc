package apify

import (
	"encoding/json"
	"fmt"
	"time"

	"ReelRelay/internal/domain"
)

type stats struct {
	PlayCount    int64 `json:"playCount"`
	DiggCount    int64 `json:"diggCount"`
	ShareCount   int64 `json:"shareCount"`
	CommentCount int64 `json:"commentCount"`
}

type videoMeta struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// hashtag is either {"name": "fyp"} or a bare string depending on the actor version.
type hashtag string

func (h *hashtag) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*h = hashtag(name)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("hashtag: %w", err)
	}
	*h = hashtag(obj.Name)
	return nil
}

// datasetItem mirrors the fields of the scraper output we consume. Field
// names moved between actor versions, hence the alternatives.
type datasetItem struct {
	ID            string    `json:"id"`
	WebVideoURL   string    `json:"webVideoUrl"`
	Text          string    `json:"text"`
	Desc          string    `json:"desc"`
	Author        string    `json:"author"`
	PlayCount     int64     `json:"playCount"`
	DiggCount     int64     `json:"diggCount"`
	ShareCount    int64     `json:"shareCount"`
	CommentCount  int64     `json:"commentCount"`
	Stats         stats     `json:"stats"`
	Hashtags      []hashtag `json:"hashtags"`
	CreateTime    int64     `json:"createTime"`
	CreateTimeISO string    `json:"createTimeISO"`
	AuthorMeta    struct {
		Name string `json:"name"`
	} `json:"authorMeta"`
	MusicMeta struct {
		MusicName string `json:"musicName"`
	} `json:"musicMeta"`
	Music struct {
		Title string `json:"title"`
	} `json:"music"`
	VideoMeta videoMeta `json:"videoMeta"`
	Video     videoMeta `json:"video"`
}

func (i datasetItem) toVideo() domain.Video {
	author := firstString(i.AuthorMeta.Name, i.Author, "unknown")

	url := i.WebVideoURL
	if url == "" {
		url = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", author, i.ID)
	}

	tags := make([]string, 0, len(i.Hashtags))
	for _, tag := range i.Hashtags {
		if tag != "" {
			tags = append(tags, string(tag))
		}
	}

	meta := i.VideoMeta
	if meta.Duration == 0 && meta.Width == 0 && meta.Height == 0 {
		meta = i.Video
	}

	return domain.Video{
		ID:       i.ID,
		URL:      url,
		Text:     firstString(i.Text, i.Desc),
		Author:   author,
		Hashtags: tags,
		Views:    firstPositive(i.PlayCount, i.Stats.PlayCount),
		Likes:    firstPositive(i.DiggCount, i.Stats.DiggCount),
		Shares:   firstPositive(i.ShareCount, i.Stats.ShareCount),
		Comments: firstPositive(i.CommentCount, i.Stats.CommentCount),
		Music:    firstString(i.MusicMeta.MusicName, i.Music.Title),
		Meta: domain.MediaMeta{
			Duration: meta.Duration,
			Width:    meta.Width,
			Height:   meta.Height,
		},
		CreatedAt: i.createdAt(),
	}
}

func (i datasetItem) createdAt() time.Time {
	if i.CreateTime > 0 {
		return time.Unix(i.CreateTime, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, i.CreateTimeISO); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
