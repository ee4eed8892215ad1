package summary

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tubelens/backend/internal/ytdlp"
)

// promptDescriptionLength is how much of the stored description the
// metadata prompt quotes.
const promptDescriptionLength = 800

const responseFormat = `Please provide analysis in this exact JSON format:
{
  "summary": "%s [Your analysis here. If information is insufficient, acknowledge this limitation.]",
  "keyPoints": ["key point 1", "key point 2", "key point 3"],
  "topics": ["topic 1", "topic 2", "topic 3"]
}

Only return the JSON object, no other text.`

const metadataPrompt = `Based on the available metadata for this YouTube video, provide an analysis in JSON format.

CRITICAL LIMITATION: You are analyzing based on title and description ONLY. You cannot see, hear, or process the actual video content. You must acknowledge this limitation in your response.

Video Information:
Title: %s
Uploader: %s
Duration: %d seconds (%d minutes %d seconds)
View Count: %s views
Upload Date: %s
Description: %s...

MANDATORY INSTRUCTIONS:
- Start your summary with "Based on the video metadata (title and description) only:"
- Acknowledge that you cannot see the actual video content
- Base your analysis ONLY on the provided title and description
- If the description is too short or vague, explicitly state this limitation
- Do not invent specific details not mentioned in the metadata
- Focus on what can be reasonably inferred from the available information
- If you cannot provide meaningful analysis due to limited information, state this clearly

`

const titlePrompt = `Based on the video title only, provide a limited analysis in JSON format.

CRITICAL LIMITATION: You only have access to the title: "%s"
You cannot see, hear, or process the actual video content. You must acknowledge this limitation.

MANDATORY INSTRUCTIONS:
- Start your summary with "Based on the video title only:"
- Explicitly state that you cannot see the actual video content
- Do not make assumptions about content you cannot see
- If the title is unclear or insufficient, acknowledge this limitation
- Focus only on what can be reasonably inferred from the title

`

const urlPrompt = `Based on the YouTube URL provided, provide a limited analysis in JSON format.

CRITICAL LIMITATION: You are analyzing based on URL only. You cannot see, hear, or process the actual video content. You must acknowledge this limitation.

MANDATORY INSTRUCTIONS:
- Start your summary with "Based on the YouTube URL only:"
- Explicitly state that you cannot see the actual video content
- Do not make assumptions about content you cannot see
- If you cannot access the video information, acknowledge this limitation
- Focus only on what can be reasonably inferred from the URL

YouTube URL: %s

`

var numbers = message.NewPrinter(language.English)

// MetadataPrompt asks for an analysis grounded in title and description.
func MetadataPrompt(title string, meta *ytdlp.Metadata) string {
	secs := int(meta.Duration)
	desc := []rune(meta.Description)
	if len(desc) > promptDescriptionLength {
		desc = desc[:promptDescriptionLength]
	}

	body := fmt.Sprintf(metadataPrompt,
		title, meta.Uploader,
		secs, secs/60, secs%60,
		numbers.Sprintf("%d", meta.ViewCount),
		meta.UploadDate, string(desc))
	return body + fmt.Sprintf(responseFormat, "Based on the video metadata (title and description) only:")
}

// TitlePrompt is used when metadata could not be fetched.
func TitlePrompt(title string) string {
	return fmt.Sprintf(titlePrompt, title) + fmt.Sprintf(responseFormat, "Based on the video title only:")
}

// URLPrompt backs the bare analyze endpoint.
func URLPrompt(url string) string {
	return fmt.Sprintf(urlPrompt, url) + fmt.Sprintf(responseFormat, "Based on the YouTube URL only:")
}
