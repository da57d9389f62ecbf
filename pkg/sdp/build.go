package sdp

import (
	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/btuuid"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/muxable/btsocket/pkg/socket"
	"github.com/pkg/errors"
)

// ProfileSpec names a profile the service implements and its version.
type ProfileSpec struct {
	UUID    string
	Version uint16
}

// Service describes what to advertise. UUIDs are given as text in any of the
// three widths.
type Service struct {
	Name        string
	Description string
	Provider    string
	ServiceID   string

	ServiceClasses []string
	Profiles       []ProfileSpec
	// Protocols are stacked on top of the socket's own transport.
	Protocols []string
}

// Prober reports whether a bound local address can be found by peers.
type Prober interface {
	Advertisable(local btaddr.Address) (bool, error)
}

// Build checks that sock can advertise svc and assembles its record. The
// first failing check wins, and no check touches the service database.
func Build(sock *socket.Socket, svc Service, prober Prober) (*Record, error) {
	if err := sock.CheckAdvertise(); err != nil {
		return nil, err
	}
	if svc.Name == "" {
		return nil, bterr.ErrMissingName
	}

	classes, err := parseUUIDs("service class", svc.ServiceClasses)
	if err != nil {
		return nil, err
	}
	protocols, err := parseUUIDs("protocol", svc.Protocols)
	if err != nil {
		return nil, err
	}
	profiles := make([]Profile, len(svc.Profiles))
	for i, p := range svc.Profiles {
		u, err := btuuid.Parse(p.UUID)
		if err != nil {
			return nil, errors.Wrap(err, "profile")
		}
		profiles[i] = Profile{UUID: u, Version: p.Version}
	}
	var serviceID btuuid.UUID
	if svc.ServiceID != "" {
		if serviceID, err = btuuid.Parse(svc.ServiceID); err != nil {
			return nil, errors.Wrap(err, "service id")
		}
	}

	local, err := sock.LocalAddr()
	if err != nil {
		return nil, err
	}
	ok, err := prober.Advertisable(local)
	if err != nil {
		return nil, errors.Wrap(err, "probe controllers")
	}
	if !ok {
		return nil, errors.Wrapf(bterr.ErrNotAdvertisable, "%v", local)
	}

	rec := &Record{
		ServiceClasses: classes,
		ServiceID:      serviceID,
		BrowseGroups:   []btuuid.UUID{btuuid.PublicBrowseGroup},
		Profiles:       profiles,
		Name:           svc.Name,
		Description:    svc.Description,
		Provider:       svc.Provider,
	}
	switch a := local.(type) {
	case btaddr.L2CAPAddr:
		rec.Protocols = append(rec.Protocols, ProtocolDescriptor{UUID: btuuid.L2CAP, Params: []Element{Uint16(a.PSM)}})
	case btaddr.RFCOMMAddr:
		rec.Protocols = append(rec.Protocols,
			ProtocolDescriptor{UUID: btuuid.L2CAP},
			ProtocolDescriptor{UUID: btuuid.RFCOMM, Params: []Element{Uint8(a.Channel)}},
		)
	default:
		return nil, errors.Wrapf(bterr.ErrUnsupportedProtocol, "local address %v", local)
	}
	for _, u := range protocols {
		rec.Protocols = append(rec.Protocols, ProtocolDescriptor{UUID: u})
	}
	return rec, nil
}

func parseUUIDs(what string, ss []string) ([]btuuid.UUID, error) {
	us := make([]btuuid.UUID, len(ss))
	for i, s := range ss {
		u, err := btuuid.Parse(s)
		if err != nil {
			return nil, errors.Wrap(err, what)
		}
		us[i] = u
	}
	return us, nil
}
