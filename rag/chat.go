package rag

import (
	"context"
	"fmt"

	"videorag/core"
	"videorag/logger"
)

// HistoryChatClient runs a multi-turn generative-text call.
type HistoryChatClient interface {
	ChatWithHistory(ctx context.Context, system string, history []core.ChatTurn, message string, maxTokens int, temperature float32) (string, error)
}

const (
	chatMaxTranscriptChars = 12000
	chatMaxHistoryTurns    = 10
)

// TranscriptChat is the ad-hoc chat helper: the whole (truncated)
// transcript goes in as system context rather than retrieved chunks.
type TranscriptChat struct {
	chat HistoryChatClient
	log  *logger.Logger
}

func NewTranscriptChat(chat HistoryChatClient, log *logger.Logger) *TranscriptChat {
	return &TranscriptChat{chat: chat, log: log.With("component", "chat")}
}

func (c *TranscriptChat) Reply(ctx context.Context, videoTitle, transcriptText, message string, history []core.ChatTurn) (string, error) {
	if transcriptText == "" {
		transcriptText = "No transcript available for this video."
	}
	if len(transcriptText) > chatMaxTranscriptChars {
		transcriptText = transcriptText[:chatMaxTranscriptChars] + "... [transcript truncated]"
	}
	if len(history) > chatMaxHistoryTurns {
		history = history[len(history)-chatMaxHistoryTurns:]
	}

	system := fmt.Sprintf(
		"You are a helpful AI assistant with access to the transcript of a video titled %q. "+
			"When the question is about the video, use the transcript below as context; "+
			"otherwise answer from general knowledge. Be helpful, concise, and friendly.\n\n"+
			"VIDEO TRANSCRIPT (for reference):\n%s",
		videoTitle, transcriptText)

	return c.chat.ChatWithHistory(ctx, system, history, message, 1024, 0.7)
}
