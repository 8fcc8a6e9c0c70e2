package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kardianos/service"
)

// program adapts the agent to the service manager lifecycle.
type program struct {
	configPath string
	cancel     context.CancelFunc
	done       chan struct{}
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		if err := runAgent(ctx, runOptions{configPath: p.configPath, quiet: true}); err != nil {
			fmt.Fprintf(os.Stderr, "agent exited: %v\n", err)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		select {
		case <-p.done:
		case <-time.After(15 * time.Second):
		}
	}
	return nil
}

func getServiceConfig() *service.Config {
	return &service.Config{
		Name:        "repairmind-print-agent",
		DisplayName: "RepairMind Print Agent",
		Description: "Prints receipts, documents and labels pushed by the RepairMind platform.",
	}
}

// runAsService starts the agent under service manager control.
func runAsService(configPath string) {
	prg := &program{configPath: configPath}
	s, err := service.New(prg, getServiceConfig())
	if err != nil {
		os.Exit(1)
	}
	if err := s.Run(); err != nil {
		os.Exit(1)
	}
}

// handleServiceCommand processes service management commands.
func handleServiceCommand(cmd, configPath string) {
	prg := &program{configPath: configPath}
	s, err := service.New(prg, getServiceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "install":
		if err := s.Install(); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				fmt.Println("Service already installed")
				return
			}
			fmt.Fprintf(os.Stderr, "Failed to install service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service installed; use '--service start' to start it")

	case "uninstall":
		status, _ := s.Status()
		if status == service.StatusRunning {
			fmt.Println("Stopping service...")
			_ = s.Stop()
			time.Sleep(2 * time.Second)
		}
		if err := s.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to uninstall service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service uninstalled")

	case "start":
		if err := s.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service started")

	case "stop":
		if err := s.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service stopped")

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Status: unknown (%v)\n", err)
			return
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("Status: running")
		case service.StatusStopped:
			fmt.Println("Status: stopped")
		default:
			fmt.Println("Status: unknown")
		}

	case "run":
		runAsService(configPath)

	default:
		fmt.Fprintf(os.Stderr, "Unknown service command: %s\n", cmd)
		fmt.Println("Valid commands: install, uninstall, start, stop, status, run")
		os.Exit(1)
	}
}
