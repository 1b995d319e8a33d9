// Command splice plans, renders, and assembles automated video edits.
package main
