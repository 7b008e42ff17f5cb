package mcpserver

// PostFormatURI is the resource URI of PostFormatContract.
const PostFormatURI = "folio://post-format"

// PostFormatContract describes the Markdown post format that LLM consumers
// should follow when creating or editing posts.
const PostFormatContract = `# Folio Post Format

Every post is a Markdown file with a YAML front matter block.

## Structure

` + "```" + `markdown
---
title: Human-readable title     # defaults to the file name without extension
author: Jane Doe                # defaults to ""
date: 2025-01-15                # ISO-8601 date or datetime, defaults to ""
description: One-line summary   # defaults to ""
categories:                     # always a list, defaults to []
  - engineering
tags:                           # always a list, defaults to []
  - go
  - tooling
draft: true                     # any other key is kept as written
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. The ` + "`" + `---` + "`" + ` fences must be the first line of the file and close the block.
   An unclosed or unparsable block leaves the post with only its file-name title.
2. ` + "`" + `title` + "`" + `, ` + "`" + `author` + "`" + `, ` + "`" + `date` + "`" + `, ` + "`" + `description` + "`" + `, ` + "`" + `categories` + "`" + ` and ` + "`" + `tags` + "`" + ` are
   always present after loading. Missing ones are filled with defaults.
3. ` + "`" + `categories` + "`" + ` and ` + "`" + `tags` + "`" + ` are lists. A single value is read as a one-item list.
   A legacy ` + "`" + `category` + "`" + ` key is folded into ` + "`" + `categories` + "`" + ` when that key is absent.
4. Custom keys keep their position and value. Nested maps and lists are allowed.
5. File paths end with ` + "`" + `.md` + "`" + ` or ` + "`" + `.markdown` + "`" + ` and use forward slashes relative to the
   workspace root. Hidden files and directories are ignored.
6. Null values are dropped when a post is written back.

## Editing

- Use ` + "`" + `update_post_attributes` + "`" + ` to change front matter. Keys you send replace
  existing ones in place; keys you omit are left untouched.
- Call ` + "`" + `get_schema` + "`" + ` to see which keys the workspace uses and their inferred types.
`
