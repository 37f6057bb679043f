// Package ragkb provides a local retrieval-augmented knowledge base.
// It discovers sources (websites, GitHub repositories, YouTube videos and
// channels), scrapes and chunks their content, indexes the chunks for
// semantic and keyword search, and keeps the index fresh with a scheduled
// change-detection pass.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, ollama/, github/).
package ragkb
