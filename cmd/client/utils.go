package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/driftsync/driftsync/internal/client"
	"github.com/driftsync/driftsync/internal/version"
)

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	bold   = lipgloss.NewStyle().Bold(true)
)

func showHeader(cfg *client.Config) {
	fmt.Println(bold.Render(version.ShortWithApp()))
	fmt.Printf("Server:   %s\n", cyan.Render(cfg.ServerURL))
	fmt.Printf("Data Dir: %s\n", cyan.Render(cfg.DataDir))
	if cfg.Path != "" {
		fmt.Printf("Config:   %s\n", gray.Render(cfg.Path))
	}
	fmt.Println()
}
