package domain

// Event types used by the built-in modules and the target seed.
const (
	EventRoot                  = "ROOT"
	EventInternetName          = "INTERNET_NAME"
	EventInternetNameUnresolve = "INTERNET_NAME_UNRESOLVED"
	EventDomainName            = "DOMAIN_NAME"
	EventIPAddress             = "IP_ADDRESS"
	EventIPv6Address           = "IPV6_ADDRESS"
	EventNetblockOwner         = "NETBLOCK_OWNER"
	EventNetblockMember        = "NETBLOCK_MEMBER"
	EventEmailAddress          = "EMAILADDR"
	EventHumanName             = "HUMAN_NAME"
	EventBGPASOwner            = "BGP_AS_OWNER"
	EventPhoneNumber           = "PHONE_NUMBER"
	EventUsername              = "USERNAME"
	EventTCPPortOpen           = "TCP_PORT_OPEN"
	EventTCPPortOpenBanner     = "TCP_PORT_OPEN_BANNER"
	EventOperatingSystem       = "OPERATING_SYSTEM"
	EventSoftwareUsed          = "SOFTWARE_USED"
	EventSSHHostKey            = "SSH_HOST_KEY"
	EventMaliciousIPAddress    = "MALICIOUS_IPADDR"
	EventMaliciousNetblock     = "MALICIOUS_NETBLOCK"
	EventMaliciousSubnet       = "MALICIOUS_SUBNET"
	EventMaliciousAffiliateIP  = "MALICIOUS_AFFILIATE_IPADDR"
	EventAffiliateIPAddress    = "AFFILIATE_IPADDR"
	EventAffiliateInternetName = "AFFILIATE_INTERNET_NAME"
	EventRawRIRData            = "RAW_RIR_DATA"
)

// EventTypeInfo describes one entry of the event type catalogue
type EventTypeInfo struct {
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	Classification Classification `json:"classification" yaml:"classification"`
}

var catalogue = map[string]EventTypeInfo{
	EventRoot:                  {EventRoot, "Internal scan root", ClassInternal},
	EventInternetName:          {EventInternetName, "Internet Name", ClassEntity},
	EventInternetNameUnresolve: {EventInternetNameUnresolve, "Internet Name - Unresolved", ClassEntity},
	EventDomainName:            {EventDomainName, "Domain Name", ClassEntity},
	EventIPAddress:             {EventIPAddress, "IP Address", ClassEntity},
	EventIPv6Address:           {EventIPv6Address, "IPv6 Address", ClassEntity},
	EventNetblockOwner:         {EventNetblockOwner, "Netblock Ownership", ClassEntity},
	EventNetblockMember:        {EventNetblockMember, "Netblock Membership", ClassEntity},
	EventEmailAddress:          {EventEmailAddress, "Email Address", ClassEntity},
	EventHumanName:             {EventHumanName, "Human Name", ClassEntity},
	EventBGPASOwner:            {EventBGPASOwner, "BGP AS Ownership", ClassEntity},
	EventPhoneNumber:           {EventPhoneNumber, "Phone Number", ClassEntity},
	EventUsername:              {EventUsername, "Username", ClassEntity},
	EventAffiliateIPAddress:    {EventAffiliateIPAddress, "Affiliate - IP Address", ClassEntity},
	EventAffiliateInternetName: {EventAffiliateInternetName, "Affiliate - Internet Name", ClassEntity},
	EventTCPPortOpen:           {EventTCPPortOpen, "Open TCP Port", ClassData},
	EventTCPPortOpenBanner:     {EventTCPPortOpenBanner, "Open TCP Port Banner", ClassData},
	EventOperatingSystem:       {EventOperatingSystem, "Operating System", ClassData},
	EventSoftwareUsed:          {EventSoftwareUsed, "Software Used", ClassData},
	EventSSHHostKey:            {EventSSHHostKey, "SSH Host Key", ClassData},
	EventMaliciousIPAddress:    {EventMaliciousIPAddress, "Malicious IP Address", ClassData},
	EventMaliciousNetblock:     {EventMaliciousNetblock, "Owned Netblock with Malicious IP", ClassData},
	EventMaliciousSubnet:       {EventMaliciousSubnet, "Malicious IP on Same Subnet", ClassData},
	EventMaliciousAffiliateIP:  {EventMaliciousAffiliateIP, "Malicious Affiliate", ClassData},
	EventRawRIRData:            {EventRawRIRData, "Raw Data from RIRs/APIs", ClassData},
}

// ClassificationOf returns the classification for an event type.
// Unknown types are treated as supporting data.
func ClassificationOf(eventType string) Classification {
	if info, ok := catalogue[eventType]; ok {
		return info.Classification
	}
	return ClassData
}

// LookupEventType returns the catalogue entry for an event type
func LookupEventType(eventType string) (EventTypeInfo, bool) {
	info, ok := catalogue[eventType]
	return info, ok
}
