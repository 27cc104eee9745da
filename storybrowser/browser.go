// Package storybrowser implements a Bubble Tea UI that fetches a catalogue
// of story files from the IF Archive's z-code index, caches it on disk, and
// lets the player pick one to download and launch.
package storybrowser

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zcodeworks/zgo/zmachine"
)

const catalogueURL = "https://www.ifarchive.org/indexes/if-archive/games/zcode/"
const cacheDuration = 7 * 24 * time.Hour

type browserState int

var docStyle = lipgloss.NewStyle().Margin(1, 2)

const (
	loadingCatalogue browserState = iota
	choosingStory
	downloadingStory
)

type story struct {
	name        string
	releaseDate time.Time
	url         string
	description string
	ifdbEntry   string
	ifwiki      string
}

func (s story) Title() string       { return s.name }
func (s story) Description() string { return s.description }
func (s story) FilterValue() string { return s.name + s.description }

type applicationModelFactory func(*zmachine.ZMachine, chan<- zmachine.InputResponse, chan<- zmachine.SaveRestoreResponse, <-chan any, []byte, string) tea.Model

type browserModel struct {
	state             browserState
	storyList         list.Model
	spinner           spinner.Model
	err               error
	newAppModel       applicationModelFactory
	selectedStoryName string
	cacheDir          string
}

type catalogueLoadedMsg []list.Item
type storyDownloadedMsg []uint8

type browserErrMsg struct{ error }

func (e browserErrMsg) Error() string { return e.error.Error() }

// NewUIModel builds the story-browser UI. newAppModel constructs the
// gameplay model once a story has been downloaded; cacheDir (if non-empty)
// is used to cache both the catalogue listing and downloaded story files
// across runs, refreshed every cacheDuration.
func NewUIModel(newAppModel applicationModelFactory, cacheDir string) tea.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return browserModel{
		state:       loadingCatalogue,
		storyList:   list.New(make([]list.Item, 0), list.NewDefaultDelegate(), 0, 0),
		newAppModel: newAppModel,
		spinner:     s,
		cacheDir:    cacheDir,
	}
}

func (m browserModel) Init() tea.Cmd {
	m.storyList.SetShowTitle(false)
	return fetchCatalogue(m.cacheDir)
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			s, selected := m.storyList.SelectedItem().(story)
			if selected {
				m.state = downloadingStory
				m.selectedStoryName = s.name

				return m, fetchStory(s, m.cacheDir)
			}
		}

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.storyList.SetSize(msg.Width-h, msg.Height-v)

	case catalogueLoadedMsg:
		m.state = choosingStory
		m.storyList.SetShowStatusBar(false)
		m.storyList.SetShowTitle(false)
		return m, m.storyList.SetItems([]list.Item(msg))

	case storyDownloadedMsg:
		zMachineOutputChannel := make(chan any)
		zMachineInputChannel := make(chan zmachine.InputResponse)
		zMachineSaveRestoreChannel := make(chan zmachine.SaveRestoreResponse)
		zMachine, err := zmachine.LoadRom([]uint8(msg), zMachineInputChannel, zMachineSaveRestoreChannel, zMachineOutputChannel)
		if err != nil {
			m.err = err
			return m, nil
		}

		newModel := m.newAppModel(zMachine, zMachineInputChannel, zMachineSaveRestoreChannel, zMachineOutputChannel, []byte(msg), m.selectedStoryName)
		return newModel, newModel.Init()

	case browserErrMsg:
		m.err = msg
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.storyList, cmd = m.storyList.Update(msg)
	return m, cmd
}

func (m browserModel) View() string {
	if m.err != nil {
		return docStyle.Render(m.err.Error())
	}
	switch m.state {
	case loadingCatalogue:
		return fmt.Sprintf("\n\n   %s Loading stories...\n\n", m.spinner.View())
	case choosingStory:
		return docStyle.Render(m.storyList.View())
	case downloadingStory:
		return fmt.Sprintf("\n\n   %s Downloading story...\n\n", m.spinner.View())
	default:
		return ""
	}
}

func cacheFilePath(cacheDir, key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(cacheDir, hex.EncodeToString(hash[:]))
}

func isCacheValid(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < cacheDuration
}

type cachedCatalogue struct {
	Stories []cachedStory `json:"stories"`
}

type cachedStory struct {
	Name        string    `json:"name"`
	ReleaseDate time.Time `json:"release_date"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	IFDBEntry   string    `json:"ifdb_entry"`
	IFWiki      string    `json:"ifwiki"`
}

func fetchStory(s story, cacheDir string) tea.Cmd {
	return func() tea.Msg {
		if cacheDir != "" {
			cachePath := cacheFilePath(cacheDir, s.url)
			if isCacheValid(cachePath) {
				data, err := os.ReadFile(cachePath)
				if err == nil {
					return storyDownloadedMsg(data)
				}
			}
		}

		c := &http.Client{Timeout: 60 * time.Second}
		res, err := c.Get(s.url)
		if err != nil {
			return browserErrMsg{err}
		}
		defer res.Body.Close() // nolint:errcheck

		storyBytes, err := io.ReadAll(res.Body)
		if err != nil {
			return browserErrMsg{err}
		}

		if cacheDir != "" {
			if err := os.MkdirAll(cacheDir, 0755); err == nil {
				cachePath := cacheFilePath(cacheDir, s.url)
				os.WriteFile(cachePath, storyBytes, 0644) // nolint:errcheck
			}
		}

		return storyDownloadedMsg(storyBytes)
	}
}

func fetchCatalogue(cacheDir string) tea.Cmd {
	return func() tea.Msg {
		if cacheDir != "" {
			cachePath := cacheFilePath(cacheDir, "catalogue")
			if isCacheValid(cachePath) {
				data, err := os.ReadFile(cachePath)
				if err == nil {
					var cached cachedCatalogue
					if json.Unmarshal(data, &cached) == nil {
						stories := make([]list.Item, 0, len(cached.Stories))
						for _, cs := range cached.Stories {
							stories = append(stories, story{
								name:        cs.Name,
								releaseDate: cs.ReleaseDate,
								url:         cs.URL,
								description: cs.Description,
								ifdbEntry:   cs.IFDBEntry,
								ifwiki:      cs.IFWiki,
							})
						}
						return catalogueLoadedMsg(stories)
					}
				}
			}
		}

		c := &http.Client{Timeout: 10 * time.Second}
		res, err := c.Get(catalogueURL)
		if err != nil {
			return browserErrMsg{err}
		}
		defer res.Body.Close() // nolint:errcheck
		if res.StatusCode != 200 {
			return browserErrMsg{fmt.Errorf("storybrowser: catalogue fetch returned status %d", res.StatusCode)}
		}

		doc, err := goquery.NewDocumentFromReader(res.Body)
		if err != nil {
			return browserErrMsg{err}
		}

		var stories []list.Item

		doc.Find("dl dt").Each(func(i int, s *goquery.Selection) {
			title := strings.Replace(s.Find("a").Text(), "◆", "", 1)
			href, _ := s.Find("a").Attr("href")
			match, _ := regexp.Match(`.*\.z[12345678]`, []byte(href))

			if !match {
				return
			}

			re := regexp.MustCompile(`\d{2}-\w{3}-\d{4}`)
			rawTimeString := s.Find("span").Text()
			releaseDate, _ := time.Parse("02-Jan-2006", re.FindString(rawTimeString))
			var description, ifdbEntry, ifwiki string

			s.NextUntil("dt").Each(func(j int, s2 *goquery.Selection) {
				if strings.Contains(s2.Text(), "IFDB") {
					ifdbEntry, _ = s2.Find("a").Attr("href")
				} else if strings.Contains(s2.Text(), "IFWiki") {
					ifwiki, _ = s2.Find("a").Attr("href")
				} else if len(s2.ChildrenFiltered("p").Nodes) == 1 {
					description = s2.Find("p").Text()
				}
			})

			stories = append(stories, story{
				name:        title,
				releaseDate: releaseDate,
				url:         "https://www.ifarchive.org" + href,
				description: description,
				ifwiki:      ifwiki,
				ifdbEntry:   ifdbEntry,
			})
		})

		if cacheDir != "" {
			if err := os.MkdirAll(cacheDir, 0755); err == nil {
				var cached cachedCatalogue
				for _, item := range stories {
					s := item.(story)
					cached.Stories = append(cached.Stories, cachedStory{
						Name:        s.name,
						ReleaseDate: s.releaseDate,
						URL:         s.url,
						Description: s.description,
						IFDBEntry:   s.ifdbEntry,
						IFWiki:      s.ifwiki,
					})
				}
				data, _ := json.Marshal(cached)
				cachePath := cacheFilePath(cacheDir, "catalogue")
				os.WriteFile(cachePath, data, 0644) // nolint:errcheck
			}
		}

		return catalogueLoadedMsg(stories)
	}
}
