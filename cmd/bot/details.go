package main

import "strings"

// parseDetails extracts the upload metadata from the conversational form:
//
//	Title: My Video
//	Description: something optional
//	Tags: a, b, c
func parseDetails(text string) (title, description string, tags []string) {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "title:"):
			title = strings.TrimSpace(line[len("title:"):])
		case strings.HasPrefix(lower, "description:"):
			description = strings.TrimSpace(line[len("description:"):])
		case strings.HasPrefix(lower, "tags:"):
			for _, t := range strings.Split(line[len("tags:"):], ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
		}
	}
	return title, description, tags
}
