package paloalto

import (
	"fmt"
	"strconv"
	"strings"
)

const maxServiceNameLength = 63

// Service is one emitted service object.
type Service struct {
	Name     string
	Protocol string
	Ports    string // comma-joined port specs
}

// ServiceRegistry deduplicates service objects by their port list and
// protocol. Entries render in first-registration order.
type ServiceRegistry struct {
	order []serviceKey
	names map[serviceKey]string
	keys  map[string]serviceKey
}

type serviceKey struct {
	ports    string
	protocol string
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		names: make(map[serviceKey]string),
		keys:  make(map[string]serviceKey),
	}
}

func formatPortSpecs(ports [][2]int) []string {
	specs := make([]string, 0, len(ports))
	for _, p := range ports {
		if p[0] == p[1] {
			specs = append(specs, strconv.Itoa(p[0]))
		} else {
			specs = append(specs, fmt.Sprintf("%d-%d", p[0], p[1]))
		}
	}
	return specs
}

// GetOrCreate returns the service name for the given port list and
// protocol, registering a new service-<term>-<protocol> object when
// the key is unseen. A name that is already bound to different ports
// is a hard error, as is a name over the PAN-OS length cap.
func (r *ServiceRegistry) GetOrCreate(termName, protocol string, ports [][2]int) (string, error) {
	key := serviceKey{
		ports:    strings.Join(formatPortSpecs(ports), ","),
		protocol: protocol,
	}
	if name, ok := r.names[key]; ok {
		return name, nil
	}
	name := "service-" + termName + "-" + protocol
	if _, ok := r.keys[name]; ok {
		return "", fmt.Errorf("%w: service %q already exists with different ports", ErrDuplicateService, name)
	}
	if len(name) > maxServiceNameLength {
		return "", fmt.Errorf("%w: service name %q exceeds %d characters", ErrNameTooLong, name, maxServiceNameLength)
	}
	r.order = append(r.order, key)
	r.names[key] = name
	r.keys[name] = key
	return name, nil
}

// Entries lists registered services in registration order.
func (r *ServiceRegistry) Entries() []Service {
	out := make([]Service, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, Service{
			Name:     r.names[key],
			Protocol: key.protocol,
			Ports:    key.ports,
		})
	}
	return out
}

func (r *ServiceRegistry) Len() int { return len(r.order) }
