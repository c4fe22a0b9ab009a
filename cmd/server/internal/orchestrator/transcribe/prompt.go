package transcribe

import (
	"strconv"
	"strings"
)

// DefaultPrompt asks for a verbatim transcript in the spoken language.
const DefaultPrompt = `Transcribe the audio word for word in the language(s) actually spoken.
Do not translate.
Keep wording, numbers, names and slang exactly as said.
Punctuate naturally where it is clear, but never paraphrase or summarize.
Where the audio is unclear write your best guess, and use (inaudible) only when you must.`

// PromptFor adds the video title to DefaultPrompt so names and terms from the
// title are spelled the same way in the transcript. An empty title yields
// DefaultPrompt unchanged.
func PromptFor(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return DefaultPrompt
	}
	return DefaultPrompt + "\nThe video is titled " + strconv.Quote(title) + "; use it only to spell names and terms correctly."
}
