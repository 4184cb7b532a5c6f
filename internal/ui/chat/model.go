// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/model"
	"github.com/jeranaias/cognito-tui/internal/storage"
	"github.com/jeranaias/cognito-tui/internal/ui/components"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
)

// =============================================================================
// STATE
// =============================================================================

// State represents the current UI state of the chat view.
type State int

const (
	StateWelcome   State = iota // Welcome screen, waiting for first keypress
	StateReady                  // Accepting input
	StateStreaming              // Response streaming in
	StateError                  // Blocking error displayed
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options carries the wiring the chat view needs from main.
type Options struct {
	Client     *backend.Client
	Runner     *StreamRunner
	Store      *storage.ConversationStore
	Downloader *backend.Downloader
	Ledger     *storage.Ledger
	ModelsDir  string

	Version   string
	ModelName string

	SystemPrompt string
	MaxTokens    int // context window for the usage gauge
	Temperature  float64
	DeepSearch   bool
	UseDocuments bool
	Markdown     bool // render finished responses through glamour
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	state  State
	theme  *styles.Theme
	keys   KeyMap
	width  int
	height int

	// Conversation state
	conversation   *model.Conversation
	streamingMsgID string
	streamingStats *model.Statistics
	streamBuf      *StreamingBuffer
	cancelMgr      *cancelManager

	// Backend
	client     *backend.Client
	runner     *StreamRunner
	downloader *backend.Downloader
	health     backend.HealthSnapshot

	// Persistence
	store     *storage.ConversationStore
	ledger    *storage.Ledger
	modelsDir string

	// Generation settings
	modelName    string
	version      string
	temperature  float64
	deepSearch   bool
	useDocuments bool

	// Transient UI state
	isThinking bool
	statusMsg  string

	// Components
	viewport      viewport.Model
	input         textinput.Model
	spin          components.Spinner
	statusBar     *components.StatusBar
	welcome       components.Welcome
	downloadBar   *components.DownloadBar
	errorDisplay  components.ErrorDisplay
	modelPicker   *components.ModelPicker
	sessionPicker *components.SessionPicker
	md            *mdCache
}

// New creates the chat view.
func New(theme *styles.Theme, opts Options) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "> "
	input.CharLimit = 4096
	input.Width = 72

	vp := viewport.New(80, 20)

	conv := model.NewConversation()
	conv.Model = opts.ModelName
	if opts.SystemPrompt != "" {
		conv.SystemPrompt = opts.SystemPrompt
	}
	if opts.MaxTokens > 0 {
		conv.SetMaxTokens(opts.MaxTokens)
	}

	statusBar := components.NewStatusBar(theme)
	statusBar.SetModel(opts.ModelName)
	if opts.MaxTokens > 0 {
		statusBar.SetTokenUsage(0, opts.MaxTokens)
	}

	welcome := components.NewWelcome(theme)
	welcome.SetVersion(opts.Version)
	welcome.SetModelName(opts.ModelName)

	return Model{
		state:         StateWelcome,
		theme:         theme,
		keys:          DefaultKeyMap(),
		conversation:  conv,
		streamBuf:     NewStreamingBuffer(),
		cancelMgr:     newCancelManager(),
		client:        opts.Client,
		runner:        opts.Runner,
		downloader:    opts.Downloader,
		store:         opts.Store,
		ledger:        opts.Ledger,
		modelsDir:     opts.ModelsDir,
		modelName:     opts.ModelName,
		version:       opts.Version,
		temperature:   opts.Temperature,
		deepSearch:    opts.DeepSearch,
		useDocuments:  opts.UseDocuments,
		viewport:      vp,
		input:         input,
		spin:          components.NewThinkingSpinner(),
		statusBar:     statusBar,
		welcome:       welcome,
		downloadBar:   components.NewDownloadBar(theme),
		modelPicker:   components.NewModelPicker(theme),
		sessionPicker: components.NewSessionPicker(theme),
		md:            newMDCache(opts.Markdown),
	}
}

// Init starts cursor blinking and the initial model scan.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, scanModelsCmd(m.modelsDir, m.ledger))
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamStartMsg:
		return m.handleStreamStart(msg)

	case StreamStatusMsg:
		return m.handleStreamStatus(msg)

	case StreamTokenMsg:
		return m.handleStreamToken(msg)

	case StreamTickMsg:
		return m.handleStreamTick(msg)

	case StreamCompleteMsg:
		return m.handleStreamComplete(msg)

	case StreamErrorMsg:
		return m.handleStreamError(msg)

	case HealthMsg:
		return m.handleHealth(msg)

	case BackendExitMsg:
		return m.handleBackendExit(msg)

	case ModelsScannedMsg:
		return m.handleModelsScanned(msg)

	case ModelLoadedMsg:
		return m.handleModelLoaded(msg)

	case DownloadProgressMsg:
		return m.handleDownloadProgress(msg)

	case ConversationSavedMsg:
		return m.handleConversationSaved(msg)

	case SessionsListedMsg:
		return m.handleSessionsListed(msg)

	case SessionResumedMsg:
		return m.handleSessionResumed(msg)

	case ExportCompleteMsg:
		return m.handleExportComplete(msg)

	case ErrorMsg:
		m.errorDisplay = components.NewErrorWithSuggestions(msg.Title, msg.Message, msg.Suggestions)
		m.errorDisplay.SetSize(m.width)
		m.state = StateError
		m.statusBar.SetStatus(components.StatusError)
		return m, nil

	case ErrorDismissMsg:
		m.errorDisplay.Hide()
		m.state = StateReady
		m.statusBar.SetStatus(components.StatusReady)
		m.input.Focus()
		return m, textinput.Blink

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	default:
		var cmds []tea.Cmd

		if m.state == StateReady {
			var inputCmd tea.Cmd
			m.input, inputCmd = m.input.Update(msg)
			cmds = append(cmds, inputCmd)
		}

		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)

		return m, tea.Batch(cmds...)
	}
}

// View renders the chat view.
func (m Model) View() string {
	return m.renderChat()
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// Layout: header + viewport (dynamic) + input area + status bar.
	// Conservative estimates for the fixed parts keep the viewport from
	// overflowing; renderChat measures actual heights and corrects.
	const (
		headerHeight    = 1
		inputAreaHeight = 3
		statusBarHeight = 1
	)

	reserved := headerHeight + inputAreaHeight + statusBarHeight
	if m.downloadBar.IsVisible() {
		reserved += 2
	}

	viewportHeight := m.height - reserved
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	viewportWidth := m.width
	if viewportWidth < 1 {
		viewportWidth = 1
	}
	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight

	// Prompt is 2 cells, container padding eats another 4.
	inputWidth := m.width - 8
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	if m.theme != nil {
		m.theme.SetSize(m.width, m.height)
	}
	m.statusBar.SetWidth(m.width)
	m.welcome.SetSize(m.width, m.height)
	m.downloadBar.SetWidth(m.width)
	m.errorDisplay.SetSize(m.width)
	m.modelPicker.SetSize(m.width, m.height)
	m.sessionPicker.SetSize(m.width, m.height)

	m.updateViewport()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Pickers swallow keys while visible.
	if m.modelPicker.IsVisible() {
		return m.handleModelPickerKey(msg)
	}
	if m.sessionPicker.IsVisible() {
		return m.handleSessionPickerKey(msg)
	}

	// Ctrl+C cancels an active stream, otherwise quits.
	if key.Matches(msg, m.keys.Quit) {
		if m.state == StateStreaming {
			return m.cancelStreaming()
		}
		return m, tea.Quit
	}

	// Welcome screen: any key starts the session.
	if m.state == StateWelcome {
		m.state = StateReady
		m.input.Focus()
		return m, textinput.Blink
	}

	if m.state == StateError {
		if key.Matches(msg, m.keys.Cancel) || key.Matches(msg, m.keys.Submit) {
			m.errorDisplay.Hide()
			m.state = StateReady
			m.statusBar.SetStatus(components.StatusReady)
			m.input.Focus()
			return m, textinput.Blink
		}
		return m, nil
	}

	if m.state == StateStreaming {
		if key.Matches(msg, m.keys.Cancel) {
			return m.cancelStreaming()
		}
		// Scrolling stays available while tokens arrive.
		return m.handleNavigationKeys(msg)
	}

	// Ready state.
	switch {
	case key.Matches(msg, m.keys.Submit):
		if strings.TrimSpace(m.input.Value()) != "" {
			return m.submitInput()
		}
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if m.downloadBar.IsVisible() {
			if m.downloadBar.IsTerminal() {
				m.downloadBar.Hide()
			} else if m.downloader != nil {
				if job := m.downloader.Active(); job != nil {
					job.Cancel()
				}
			}
		}
		m.statusMsg = ""
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.conversation.ClearHistory()
		m.statusBar.SetTokenUsage(m.conversation.EstimateTokens(), 0)
		m.updateViewport()
		m.statusMsg = "Conversation cleared"
		return m, nil

	case key.Matches(msg, m.keys.Models):
		m.modelPicker.Show()
		return m, scanModelsCmd(m.modelsDir, m.ledger)

	case key.Matches(msg, m.keys.Sessions):
		return m, listSessionsCmd(m.store)

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown),
		key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		return m.handleNavigationKeys(msg)

	case key.Matches(msg, m.keys.Home), key.Matches(msg, m.keys.End):
		// Home/End edit the input line when it has content.
		if m.input.Value() == "" {
			return m.handleNavigationKeys(msg)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleNavigationKeys scrolls the transcript viewport.
func (m Model) handleNavigationKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
	}
	return m, nil
}

func (m Model) handleModelPickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.modelPicker.MoveUp()
	case key.Matches(msg, m.keys.Down):
		m.modelPicker.MoveDown()
	case key.Matches(msg, m.keys.Cancel):
		m.modelPicker.Hide()
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Submit):
		sel := m.modelPicker.Selected()
		m.modelPicker.Hide()
		if sel != nil {
			m.statusBar.SetStatus(components.StatusLoading)
			m.statusMsg = "Loading " + sel.DisplayName() + "..."
			return m, loadModelCmd(m.client, sel.Path, sel.Filename)
		}
	default:
		// Anything typed narrows the list.
		switch msg.Type {
		case tea.KeyRunes:
			for _, r := range msg.Runes {
				m.modelPicker.TypeFilter(r)
			}
		case tea.KeyBackspace:
			m.modelPicker.BackspaceFilter()
		}
	}
	return m, nil
}

func (m Model) handleSessionPickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.sessionPicker.MoveUp()
	case key.Matches(msg, m.keys.Down):
		m.sessionPicker.MoveDown()
	case key.Matches(msg, m.keys.Cancel):
		m.sessionPicker.Hide()
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Submit):
		sel := m.sessionPicker.Selected()
		m.sessionPicker.Hide()
		if sel != nil {
			return m, resumeSessionCmd(m.store, sel.ID)
		}
	}
	return m, nil
}

// cancelStreaming cancels the in-flight request. The backend client turns
// cancellation into a clean completion, so teardown happens in
// handleStreamComplete when the final event lands.
func (m Model) cancelStreaming() (tea.Model, tea.Cmd) {
	m.cancelStream()
	m.statusMsg = "Canceled"
	return m, nil
}

// =============================================================================
// INPUT SUBMISSION
// =============================================================================

// submitInput sends the typed message: slash commands go to the command
// registry, everything else becomes a user message and a streaming request.
func (m Model) submitInput() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return m, nil
	}

	if strings.HasPrefix(content, "/") {
		return m.handleCommand(content)
	}

	m.input.Reset()
	m.statusMsg = ""

	m.conversation.AddUserMessage(content)
	assistantMsg := m.conversation.AddAssistantMessage()

	m.updateViewport()
	m.viewport.GotoBottom()

	return m, m.startStreamingCmd(assistantMsg.ID)
}

// startStreamingCmd builds the chat request and hands it to the stream
// runner. The runner pushes stream messages back through the program while
// the returned command blocks in its own goroutine.
func (m *Model) startStreamingCmd(messageID string) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.setCancelFunc(cancel)

	req := backend.ChatRequest{
		Messages:     m.conversation.ToBackendMessages(),
		Temperature:  m.temperature,
		DeepSearch:   m.deepSearch,
		UseDocuments: m.useDocuments,
	}

	runner := m.runner
	return func() tea.Msg {
		runner.Run(ctx, req, messageID)
		return nil
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// updateViewport re-renders the transcript into the viewport.
func (m *Model) updateViewport() {
	m.viewport.SetContent(m.renderMessages())
}

// GetConversation exposes the active conversation, used by main for a
// best-effort save on exit.
func (m *Model) GetConversation() *model.Conversation {
	return m.conversation
}

// Health exposes the latest backend snapshot.
func (m *Model) Health() backend.HealthSnapshot {
	return m.health
}
