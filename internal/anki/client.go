// Package anki talks to the AnkiConnect add-on: a loopback HTTP endpoint
// accepting {"action","version","params"} envelopes and answering with
// {"result","error"}.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ankigen/internal/models"
)

const (
	// DefaultURL is where AnkiConnect listens when Anki is running locally.
	DefaultURL = "http://localhost:8765"

	apiVersion = 6
)

// Note is the AnkiConnect note shape for addNote/canAddNotes.
type Note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Options   NoteOptions       `json:"options"`
	Tags      []string          `json:"tags"`
}

type NoteOptions struct {
	AllowDuplicate bool `json:"allowDuplicate"`
}

// ExportResult reports the outcome of inserting one card.
type ExportResult struct {
	CardID string `json:"cardId"`
	NoteID int64  `json:"noteId,omitempty"`
	Status string `json:"status"` // added, duplicate, error
	Error  string `json:"error,omitempty"`
}

type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewClient(url string, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

type rpcRequest struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// invoke posts one action to the control plane and decodes its result.
func (c *Client) invoke(ctx context.Context, action string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call ankiconnect %s: %w", action, err)
	}
	defer resp.Body.Close()

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	if rpc.Error != nil && *rpc.Error != "" {
		return fmt.Errorf("ankiconnect %s: %s", action, *rpc.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", action, err)
		}
	}
	return nil
}

// Version checks that the control plane is reachable and speaks our version.
func (c *Client) Version(ctx context.Context) (int, error) {
	var version int
	if err := c.invoke(ctx, "version", nil, &version); err != nil {
		return 0, err
	}
	return version, nil
}

// CreateDeck is idempotent: AnkiConnect returns the existing deck's id when
// the deck is already there.
func (c *Client) CreateDeck(ctx context.Context, name string) error {
	params := map[string]string{"deck": name}
	return c.invoke(ctx, "createDeck", params, nil)
}

// AddNote inserts a single note and returns its assigned note id.
func (c *Client) AddNote(ctx context.Context, note Note) (int64, error) {
	params := map[string]Note{"note": note}
	var noteID int64
	if err := c.invoke(ctx, "addNote", params, &noteID); err != nil {
		return 0, err
	}
	return noteID, nil
}

// NoteFromCard maps a FlashCard onto the target's Basic or Cloze note shape.
// The difficulty rides along as a tag so it survives the export.
func NoteFromCard(card models.FlashCard, deck string) Note {
	tags := make([]string, 0, len(card.Tags)+1)
	for _, tag := range card.Tags {
		tag = strings.ReplaceAll(strings.TrimSpace(tag), " ", "-")
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if card.Difficulty != "" {
		tags = append(tags, string(card.Difficulty))
	}

	note := Note{
		DeckName: deck,
		Options:  NoteOptions{AllowDuplicate: false},
		Tags:     tags,
	}
	if card.Type == models.CardTypeCloze && models.HasClozeSpan(card.Front) {
		note.ModelName = "Cloze"
		note.Fields = map[string]string{
			"Text":       card.Front,
			"Back Extra": card.Context,
		}
	} else {
		note.ModelName = "Basic"
		note.Fields = map[string]string{
			"Front": card.Front,
			"Back":  card.Back,
		}
	}
	return note
}

// ExportCards ensures the deck exists and inserts each card individually so
// a duplicate refusal never aborts the batch. Transport failures do abort,
// returning the outcomes accumulated so far.
func (c *Client) ExportCards(ctx context.Context, deck string, cards []models.FlashCard) ([]ExportResult, error) {
	if deck == "" {
		return nil, fmt.Errorf("deck name is required")
	}
	if err := c.CreateDeck(ctx, deck); err != nil {
		return nil, fmt.Errorf("ensure deck %q: %w", deck, err)
	}

	results := make([]ExportResult, 0, len(cards))
	for _, card := range cards {
		noteID, err := c.AddNote(ctx, NoteFromCard(card, deck))
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			status := "error"
			if strings.Contains(strings.ToLower(err.Error()), "duplicate") {
				status = "duplicate"
			}
			c.logger.WarnContext(ctx, "note insert refused",
				"card_id", card.ID, "status", status, "error", err)
			results = append(results, ExportResult{CardID: card.ID, Status: status, Error: err.Error()})
			continue
		}
		results = append(results, ExportResult{CardID: card.ID, NoteID: noteID, Status: "added"})
	}

	c.logger.InfoContext(ctx, "export finished", "deck", deck, "cards", len(cards))
	return results, nil
}
