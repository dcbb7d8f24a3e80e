package discovery

import (
	"fmt"
	"net"
)

// maxCandidates ограничивает размер одной выборки кандидатов:
// развертывание рассчитано на маленькие домашние/офисные сети.
const maxCandidates = 1024

// CandidateSource генерирует адреса-кандидаты для поиска peer, у которого
// нет работающего address hint.
type CandidateSource interface {
	Candidates() ([]string, error)
}

// SubnetCandidates перечисляет соседей по локальным IPv4 /24 подсетям на
// известном порту сервиса. Грубый, но предсказуемый способ найти peer в
// плоской LAN без multicast.
type SubnetCandidates struct {
	port int
}

// NewSubnetCandidates создает источник кандидатов для порта сервиса.
func NewSubnetCandidates(port int) *SubnetCandidates {
	return &SubnetCandidates{port: port}
}

// Candidates возвращает адреса host:port всех соседей по /24 подсетям
// локальных интерфейсов, исключая собственные адреса.
func (s *SubnetCandidates) Candidates() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	var out []string
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil || ip.IsLoopback() {
			continue
		}
		ones, bits := ipnet.Mask.Size()
		if bits != 32 || ones < 24 {
			// Подсети шире /24 не сканируем.
			continue
		}

		base := ip.Mask(net.CIDRMask(24, 32))
		for host := 1; host <= 254; host++ {
			candidate := net.IPv4(base[0], base[1], base[2], byte(host))
			if candidate.Equal(ip) {
				continue
			}
			out = append(out, fmt.Sprintf("%s:%d", candidate, s.port))
			if len(out) >= maxCandidates {
				return out, nil
			}
		}
	}
	return out, nil
}
