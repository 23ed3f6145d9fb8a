// Package ports assigns outer ports to new stack services without colliding
// with ports already published by services of the same group.
package ports

import "stackbot-deployment/internal/models"

// Suggest returns the lowest port at or above floor that is not in used.
func Suggest(used map[int]struct{}, floor int) int {
	port := floor
	for {
		if _, taken := used[port]; !taken {
			return port
		}
		port++
	}
}

// Used collects the outer ports of every service named group. Services are
// looked up by resource URI in services; stacks that are terminating or
// terminated are skipped.
func Used(stacks []models.Stack, services map[string]*models.Service, group string) map[int]struct{} {
	used := make(map[int]struct{})
	for _, stack := range ActiveStacks(stacks) {
		for _, uri := range stack.Services {
			svc, ok := services[uri]
			if !ok || svc.Name != group {
				continue
			}
			for _, p := range svc.ContainerPorts {
				used[p.OuterPort] = struct{}{}
			}
		}
	}
	return used
}

// ActiveStacks filters out stacks that are terminating or terminated.
func ActiveStacks(stacks []models.Stack) []models.Stack {
	active := make([]models.Stack, 0, len(stacks))
	for _, s := range stacks {
		if s.Status().Active() {
			active = append(active, s)
		}
	}
	return active
}

// Set builds a used-port set from a list.
func Set(ports ...int) map[int]struct{} {
	set := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return set
}
