package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT creates the TXT records of a server advertisement.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	version := info.Version
	if version == "" {
		version = ProtocolVersion
	}
	txt[TXTKeyVersion] = version

	if info.Secure {
		txt[TXTKeySecure] = "1"
	}
	if info.Domain != "" {
		txt[TXTKeyDomain] = info.Domain
	}
	return txt
}

// DecodeServerTXT parses the TXT records of a server advertisement.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	version, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if version == "" {
		return nil, fmt.Errorf("%w: empty version", ErrInvalidTXTRecord)
	}

	info := &ServerInfo{
		Version: version,
		Domain:  txt[TXTKeyDomain],
	}
	switch sec := txt[TXTKeySecure]; sec {
	case "", "0":
	case "1":
		info.Secure = true
	default:
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeySecure, sec)
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			// Key without value (boolean flag)
			v = ""
		}
		txt[k] = v
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTXTRecord)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
