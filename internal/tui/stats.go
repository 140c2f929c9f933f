package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mikequentel/xpost/internal/model"
)

const (
	statsPostCount  = 10
	statsReplyCount = 20
	repliesShown    = 5
)

// StatsSource is the read side of the API gateway.
type StatsSource interface {
	CurrentUser(ctx context.Context) (model.User, error)
	UserPosts(ctx context.Context, userID string, maxResults int) ([]model.Post, error)
	PostReplies(ctx context.Context, postID string, maxResults int) ([]model.Post, error)
}

type statsScreen int

const (
	screenLoading statsScreen = iota
	screenList
	screenDetail
	screenError
)

type postsMsg struct {
	user  model.User
	posts []model.Post
}

type repliesMsg struct {
	postID  string
	replies []model.Post
	err     error
}

type statsErrMsg struct{ err error }

// Stats lists the user's recent posts and shows metrics and replies for one.
type Stats struct {
	src     StatsSource
	ctx     context.Context
	screen  statsScreen
	message string

	user     model.User
	posts    []model.Post
	selected int

	replies        []model.Post
	repliesLoading bool
	repliesErr     error
	scroll         int
}

func NewStats(ctx context.Context, src StatsSource) Stats {
	return Stats{src: src, ctx: ctx, screen: screenLoading, message: "Fetching posts..."}
}

func (s Stats) Init() tea.Cmd { return s.fetchPosts }

func (s Stats) fetchPosts() tea.Msg {
	user, err := s.src.CurrentUser(s.ctx)
	if err != nil {
		return statsErrMsg{fmt.Errorf("fetch current user: %w", err)}
	}
	posts, err := s.src.UserPosts(s.ctx, user.ID, statsPostCount)
	if err != nil {
		return statsErrMsg{fmt.Errorf("fetch posts: %w", err)}
	}
	return postsMsg{user: user, posts: posts}
}

func (s Stats) fetchReplies(postID string) tea.Cmd {
	return func() tea.Msg {
		replies, err := s.src.PostReplies(s.ctx, postID, statsReplyCount)
		return repliesMsg{postID: postID, replies: replies, err: err}
	}
}

func (s Stats) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case postsMsg:
		s.user, s.posts = msg.user, msg.posts
		if len(s.posts) == 0 {
			s.screen, s.message = screenError, "No posts found"
			return s, nil
		}
		s.screen, s.selected = screenList, 0
	case statsErrMsg:
		s.screen, s.message = screenError, msg.err.Error()
	case repliesMsg:
		if s.screen != screenDetail || msg.postID != s.posts[s.selected].ID {
			return s, nil
		}
		s.repliesLoading = false
		s.replies, s.repliesErr, s.scroll = msg.replies, msg.err, 0
	case tea.KeyMsg:
		return s.key(msg)
	}
	return s, nil
}

func (s Stats) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return s, tea.Quit
	}
	switch s.screen {
	case screenLoading:
	case screenError:
		return s, tea.Quit
	case screenList:
		n := len(s.posts)
		switch {
		case msg.Type == tea.KeyEsc || msg.String() == "q":
			return s, tea.Quit
		case msg.Type == tea.KeyDown:
			s.selected = (s.selected + 1) % n
		case msg.Type == tea.KeyUp:
			s.selected = (s.selected - 1 + n) % n
		case msg.Type == tea.KeyEnter:
			s.screen = screenDetail
			s.replies, s.repliesErr, s.scroll = nil, nil, 0
			s.repliesLoading = true
			return s, s.fetchReplies(s.posts[s.selected].ID)
		}
	case screenDetail:
		switch msg.Type {
		case tea.KeyEsc:
			s.screen = screenList
		case tea.KeyDown:
			if s.scroll < len(s.replies)-1 {
				s.scroll++
			}
		case tea.KeyUp:
			if s.scroll > 0 {
				s.scroll--
			}
		}
	}
	return s, nil
}

func (s Stats) View() string {
	switch s.screen {
	case screenLoading:
		return warnStyle.Render(s.message)
	case screenError:
		return errStyle.Render(s.message) + "\n\n" + helpStyle.Render("Any key: exit")
	case screenDetail:
		return s.detailView()
	}

	var b strings.Builder
	for i, p := range s.posts {
		line := postDate(p) + " | " + truncate(firstLine(p.Text), 80)
		if i == s.selected {
			b.WriteString(selectedStyle.Render(">> " + line))
		} else {
			b.WriteString("   " + line)
		}
		b.WriteByte('\n')
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Your Recent Posts (@"+s.user.Username+")"),
		boxStyle.Render(strings.TrimRight(b.String(), "\n")),
		helpStyle.Render("↑/↓: navigate | Enter: view stats | q/Esc: exit"),
	)
}

func (s Stats) detailView() string {
	p := s.posts[s.selected]
	metrics := dimStyle.Render("No metrics available")
	if m := p.PublicMetrics; m != nil {
		metrics = fmt.Sprintf("Likes: %d\nReposts: %d\nReplies: %d\nQuotes: %d\nImpressions: %d",
			m.LikeCount, m.RetweetCount, m.ReplyCount, m.QuoteCount, m.ImpressionCount)
	}

	var replies string
	switch {
	case s.repliesLoading:
		replies = warnStyle.Render("Loading replies...")
	case s.repliesErr != nil:
		replies = errStyle.Render("Could not load replies: " + s.repliesErr.Error())
	case len(s.replies) == 0:
		replies = dimStyle.Render("No replies")
	default:
		end := min(s.scroll+repliesShown, len(s.replies))
		var b strings.Builder
		for _, r := range s.replies[s.scroll:end] {
			fmt.Fprintf(&b, "%s | %s\n", postDate(r), truncate(firstLine(r.Text), 70))
		}
		fmt.Fprintf(&b, "(%d-%d of %d)", s.scroll+1, end, len(s.replies))
		replies = b.String()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Post Statistics"),
		boxStyle.Render(p.Text),
		boxStyle.Render(metrics),
		boxStyle.Render(replies),
		helpStyle.Render("↑/↓: scroll replies | Esc: back"),
	)
}

func postDate(p model.Post) string {
	if p.CreatedAt == nil {
		return "Unknown date"
	}
	return p.CreatedAt.Local().Format(time.DateOnly)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
